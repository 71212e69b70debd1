package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsOptions configures token-based APNs delivery
type APNsOptions struct {
	KeyFile      string
	KeyID        string
	TeamID       string
	Topic        string
	DeviceTokens []string
	Production   bool
}

// APNs pushes notifications to the user's registered Apple devices
type APNs struct {
	client  *apns2.Client
	topic   string
	devices []string
}

// NewAPNs loads the signing key and creates the client
func NewAPNs(opts APNsOptions) (*APNs, error) {
	key, err := token.AuthKeyFromFile(opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: key,
		KeyID:   opts.KeyID,
		TeamID:  opts.TeamID,
	})
	if opts.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNs{client: client, topic: opts.Topic, devices: opts.DeviceTokens}, nil
}

// Notify implements Notifier
func (a *APNs) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, device := range a.devices {
		res, err := a.client.PushWithContext(ctx, a.build(device, n))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to push to device: %w", err))
			continue
		}
		if !res.Sent() {
			log.Warn().
				Int("status", res.StatusCode).
				Str("reason", res.Reason).
				Msg("APNs rejected notification")
			errs = append(errs, fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason))
		}
	}
	return errors.Join(errs...)
}

func (a *APNs) build(device string, n Notification) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Message).
		Custom("kind", string(n.Kind))
	if n.LocalID != "" {
		p.Custom("local_id", n.LocalID)
	}
	if n.StoryID != "" {
		p.Custom("story_id", n.StoryID)
	}

	return &apns2.Notification{
		DeviceToken: device,
		Topic:       a.topic,
		Payload:     p,
		PushType:    apns2.PushTypeAlert,
		Priority:    apns2.PriorityLow,
	}
}
