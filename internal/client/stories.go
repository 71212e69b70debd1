// Package client talks to the remote story service. It performs no retries;
// callers decide what to do with ErrRemoteUnavailable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"story-offline/internal/models"
	"story-offline/internal/sentinel"
)

const maxErrorBody = 4096

// Client is an HTTP client for the remote story API
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a client for baseURL; timeout bounds every call
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

type remoteStory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
}

type envelope struct {
	Error     bool          `json:"error"`
	Message   string        `json:"message"`
	ListStory []remoteStory `json:"listStory"`
	Story     *remoteStory  `json:"story"`
}

func (r *remoteStory) toModel() *models.Story {
	s := &models.Story{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		PhotoURL:    r.PhotoURL,
		CreatedAt:   r.CreatedAt,
	}
	if r.Lat != nil && r.Lon != nil {
		s.Location = &models.Location{Lat: *r.Lat, Lon: *r.Lon}
	}
	return s
}

// ListStories handles GET /stories
func (c *Client) ListStories(ctx context.Context) ([]*models.Story, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stories", nil)
	if err != nil {
		return nil, err
	}

	env, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	stories := make([]*models.Story, 0, len(env.ListStory))
	for i := range env.ListStory {
		stories = append(stories, env.ListStory[i].toModel())
	}
	return stories, nil
}

// CreateStory handles POST /stories. The returned story is nil when the
// service does not echo the created record.
func (c *Client) CreateStory(ctx context.Context, story *models.NewStory) (*models.Story, error) {
	body, contentType, err := encodeNewStory(story)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/stories", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	env, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	if env.Story == nil {
		return nil, nil
	}
	return env.Story.toModel(), nil
}

// DeleteStory handles DELETE /stories/{id}
func (c *Client) DeleteStory(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/stories/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	var env envelope
	if resp.StatusCode == http.StatusNoContent {
		return &env, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: invalid response body: %w", sentinel.ErrRemoteUnavailable, err)
	}
	if env.Error {
		return nil, fmt.Errorf("%w: %s", sentinel.ErrRejected, env.Message)
	}
	return &env, nil
}

func statusError(resp *http.Response) error {
	message := http.StatusText(resp.StatusCode)
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env envelope
	if json.Unmarshal(data, &env) == nil && env.Message != "" {
		message = env.Message
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = sentinel.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		kind = sentinel.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		kind = sentinel.ErrRemoteUnavailable
	default:
		kind = sentinel.ErrRejected
	}
	return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, message)
}

func encodeNewStory(story *models.NewStory) (io.Reader, string, error) {
	if story == nil || len(story.Photo) == 0 {
		return nil, "", fmt.Errorf("%w: photo is required", sentinel.ErrInvalidInput)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("description", story.Description); err != nil {
		return nil, "", fmt.Errorf("failed to write description: %w", err)
	}

	contentType := story.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	filename := "photo"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		filename += exts[0]
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(story.Photo); err != nil {
		return nil, "", fmt.Errorf("failed to write photo: %w", err)
	}

	if story.Location != nil {
		if err := w.WriteField("lat", strconv.FormatFloat(story.Location.Lat, 'f', -1, 64)); err != nil {
			return nil, "", fmt.Errorf("failed to write lat: %w", err)
		}
		if err := w.WriteField("lon", strconv.FormatFloat(story.Location.Lon, 'f', -1, 64)); err != nil {
			return nil, "", fmt.Errorf("failed to write lon: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
