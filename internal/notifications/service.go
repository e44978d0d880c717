package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"winecellar/internal/config"
)

const userAgent = "winecellar/1.0"

// Service defines the notification surface exposed to the CLI and daemon.
type Service interface {
	NotifySynced(ctx context.Context, noteID int64, wine, uri string) error
	NotifySyncFailed(ctx context.Context, noteID int64, wine, stage string, err error) error
	NotifyResyncCompleted(ctx context.Context, synced, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, label string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		synced:   cfg.Notifications.Synced,
		failures: cfg.Notifications.Failures,
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
	synced   bool
	failures bool
}

func (n *ntfyService) NotifySynced(ctx context.Context, noteID int64, wine, uri string) error {
	if !n.synced {
		return nil
	}
	message := fmt.Sprintf("🍷 Synced note #%d: %s", noteID, displayWine(wine))
	if uri = strings.TrimSpace(uri); uri != "" {
		message = fmt.Sprintf("%s\nImage: %s", message, uri)
	}
	return n.send(ctx, payload{
		title:   "Wine Cellar - Synced",
		message: message,
		tags:    []string{"winecellar", "sync", "completed"},
	})
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, noteID int64, wine, stage string, err error) error {
	if !n.failures {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "sync"
	}
	return n.send(ctx, payload{
		title:    "Wine Cellar - Sync Failed",
		message:  fmt.Sprintf("❌ Note #%d (%s) failed at %s: %s", noteID, displayWine(wine), stage, reason),
		tags:     []string{"winecellar", "sync", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyResyncCompleted(ctx context.Context, synced, failed int, duration time.Duration) error {
	if synced == 0 && failed == 0 {
		return nil
	}
	if failed == 0 && !n.synced {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "Wine Cellar - Resync Complete"
	message := fmt.Sprintf("Resync complete: %d notes synced in %s", synced, duration)
	if failed > 0 {
		title = "Wine Cellar - Resync Complete (with errors)"
		message = fmt.Sprintf("Resync complete: %d synced, %d failed in %s", synced, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"winecellar", "resync", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
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

	return n.send(ctx, payload{
		title:    "Wine Cellar - Error",
		message:  builder.String(),
		tags:     []string{"winecellar", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Wine Cellar - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"winecellar", "test"},
		priority: "low",
	})
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

func displayWine(wine string) string {
	if wine = strings.TrimSpace(wine); wine != "" {
		return wine
	}
	return "unnamed wine"
}

type noopService struct{}

func (noopService) NotifySynced(context.Context, int64, string, string) error { return nil }
func (noopService) NotifySyncFailed(context.Context, int64, string, string, error) error { return nil }
func (noopService) NotifyResyncCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error { return nil }
