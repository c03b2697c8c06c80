package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wepp/internal/config"
	"wepp/internal/logging"
)

const userAgent = "wepp-go/0.1.0"

// Service pushes operator-facing notifications.
type Service interface {
	NotifySessionComplete(ctx context.Context, dataset string, recordings int) error
	NotifySyncFailed(ctx context.Context, dataset string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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

func (n *ntfyService) NotifySessionComplete(ctx context.Context, dataset string, recordings int) error {
	dataset = strings.TrimSpace(dataset)
	noun := "recordings"
	if recordings == 1 {
		noun = "recording"
	}
	return n.send(ctx, payload{
		title:   "WEPP - Session Complete",
		message: fmt.Sprintf("All segments annotated: %s (%d %s)", dataset, recordings, noun),
		tags:    []string{"wepp", "session", "completed"},
	})
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, dataset string, err error) error {
	var builder strings.Builder
	builder.WriteString("REDCap upload failed")
	if dataset = strings.TrimSpace(dataset); dataset != "" {
		builder.WriteString(" for ")
		builder.WriteString(dataset)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("no records accepted")
	}
	return n.send(ctx, payload{
		title:    "WEPP - Sync Failed",
		message:  builder.String(),
		tags:     []string{"wepp", "redcap", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "WEPP - Test",
		message:  "Notification system test",
		tags:     []string{"wepp", "test"},
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
	if data.priority != "" {
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

func (noopService) NotifySessionComplete(context.Context, string, int) error { return nil }
func (noopService) NotifySyncFailed(context.Context, string, error) error    { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }

// ForwardOptions selects which engine events are pushed.
type ForwardOptions struct {
	Dataset         string
	Recordings      int
	SessionComplete bool
	SyncFailure     bool
	Timeout         time.Duration
}

// Forward subscribes svc to the hub. Delivery failures are logged and never
// reach the engine.
func Forward(hub *Hub, svc Service, logger *slog.Logger, opts ForwardOptions) {
	if hub == nil || svc == nil {
		return
	}
	logger = logging.NewComponentLogger(logger, "notifications")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deliver := func(kind string, fn func(context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
				logging.String("notification", kind),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "operator was not notified"),
			)
		}
	}

	if opts.SessionComplete {
		hub.On(SessionComplete, func(Event) {
			deliver("session_complete", func(ctx context.Context) error {
				return svc.NotifySessionComplete(ctx, opts.Dataset, opts.Recordings)
			})
		})
	}
	if opts.SyncFailure {
		hub.On(SyncResponse, func(e Event) {
			if e.Succeeded() {
				return
			}
			deliver("sync_failed", func(ctx context.Context) error {
				return svc.NotifySyncFailed(ctx, opts.Dataset, e.Err)
			})
		})
	}
}
