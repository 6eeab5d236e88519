// Package notifications pushes channel lifecycle events to ntfy. Without a
// configured topic every call is a no-op, so callers never guard sends.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "rerun/0.1.0"

// Service is the notification surface exposed to the daemon and loop.
type Service interface {
	NotifyChannelStarted(ctx context.Context, playlistPath string, segmentCount int) error
	NotifyChannelStopped(ctx context.Context, reason string) error
	NotifySegmentAbandoned(ctx context.Context, episode string, failures int) error
	NotifyPlaylistDrained(ctx context.Context) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// Options configures the ntfy backend.
type Options struct {
	Topic          string
	RequestTimeout time.Duration
}

// NewService builds a notification service backed by ntfy when configured.
// When no topic is configured, a noop implementation is returned.
func NewService(opts Options) Service {
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		return noopService{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyChannelStarted(ctx context.Context, playlistPath string, segmentCount int) error {
	data := payload{
		title:   "Rerun - On Air",
		message: fmt.Sprintf("Channel started: %d segments from %s", segmentCount, playlistPath),
		tags:    []string{"rerun", "channel", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyChannelStopped(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "requested"
	}
	data := payload{
		title:   "Rerun - Off Air",
		message: fmt.Sprintf("Channel stopped: %s", reason),
		tags:    []string{"rerun", "channel", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySegmentAbandoned(ctx context.Context, episode string, failures int) error {
	episode = strings.TrimSpace(episode)
	data := payload{
		title:    "Rerun - Segment Abandoned",
		message:  fmt.Sprintf("Abandoned %s after %d consecutive failures", episode, failures),
		tags:     []string{"rerun", "segment", "abandoned"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPlaylistDrained(ctx context.Context) error {
	data := payload{
		title:   "Rerun - Playlist Drained",
		message: "Reached end of playlist with looping disabled",
		tags:    []string{"rerun", "playlist", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Rerun - Error",
		message:  builder.String(),
		tags:     []string{"rerun", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Rerun - Test",
		message:  "Notification system test",
		tags:     []string{"rerun", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyChannelStarted(context.Context, string, int) error   { return nil }
func (noopService) NotifyChannelStopped(context.Context, string) error        { return nil }
func (noopService) NotifySegmentAbandoned(context.Context, string, int) error { return nil }
func (noopService) NotifyPlaylistDrained(context.Context) error               { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
