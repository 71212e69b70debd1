package main

import "story-offline/cmd"

func main() {
	cmd.Execute()
}
