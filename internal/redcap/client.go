package redcap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wepp/internal/archive"
	"wepp/internal/config"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/services"
)

const (
	// TokenLength is the length of a REDCap API token.
	TokenLength = 32

	defaultMaxAttempts = 10
	defaultTimeout     = 30 * time.Second
	userAgent          = "wepp-go/0.1.0"
)

var endpointPattern = regexp.MustCompile(`^https://.*/api/$`)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ValidCredentials reports whether endpoint and token have the shape of a
// REDCap API endpoint and project token.
func ValidCredentials(endpoint, token string) error {
	if !endpointPattern.MatchString(endpoint) {
		return services.Wrap(services.ErrValidation, "redcap", "credentials",
			fmt.Sprintf("endpoint %q must be an https URL ending in /api/", endpoint), nil)
	}
	if len(token) != TokenLength {
		return services.Wrap(services.ErrValidation, "redcap", "credentials",
			fmt.Sprintf("token must be %d characters, got %d", TokenLength, len(token)), nil)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	URL         string
	Token       string
	MaxAttempts int
	Timeout     time.Duration
	HTTPClient  HTTPDoer
	Emitter     notifications.Emitter
	Logger      *slog.Logger
}

// Client uploads archived picks to REDCap. At most one request is in flight;
// sends made while busy replace a single queued payload so only the latest
// survives. Responses are reported as SyncResponse events.
type Client struct {
	client      HTTPDoer
	timeout     time.Duration
	maxAttempts int
	emitter     notifications.Emitter
	logger      *slog.Logger

	mu        sync.Mutex
	endpoint  string
	token     string
	sending   bool
	queued    archive.Upload
	hasQueued bool
	working   bool
	attempts  int
	idle      chan struct{}
}

// New builds a client. Credentials that fail ValidCredentials are ignored and
// leave the client disabled until UpdateCredentials succeeds.
func New(opts Options) *Client {
	c := &Client{
		client:      opts.HTTPClient,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		emitter:     opts.Emitter,
		logger:      logging.NewComponentLogger(opts.Logger, "redcap"),
		idle:        make(chan struct{}),
	}
	close(c.idle)
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}

	endpoint, token := strings.TrimSpace(opts.URL), strings.TrimSpace(opts.Token)
	if endpoint == "" && token == "" {
		return c
	}
	if err := ValidCredentials(endpoint, token); err != nil {
		logging.WarnWithContext(c.logger, "redcap credentials rejected", "redcap_credentials_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set redcap.url to https://<host>/api/ and a 32 character token"),
			logging.String(logging.FieldImpact, "picks stay local until credentials are updated"),
		)
		return c
	}
	c.endpoint, c.token = endpoint, token
	return c
}

// NewFromConfig builds a client from the redcap config section. A disabled
// section yields a client without credentials.
func NewFromConfig(cfg *config.Config, emitter notifications.Emitter, logger *slog.Logger) *Client {
	opts := Options{Emitter: emitter, Logger: logger}
	if cfg != nil {
		opts.MaxAttempts = cfg.REDCap.MaxAttempts
		opts.Timeout = time.Duration(cfg.REDCap.RequestTimeout) * time.Second
		if cfg.REDCap.Enabled {
			opts.URL = cfg.REDCap.URL
			opts.Token = cfg.REDCap.Token
		}
	}
	return New(opts)
}

// Enabled reports whether credentials are set.
func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint != "" && c.token != ""
}

// Working reports whether REDCap has accepted an upload since the credentials
// were last set.
func (c *Client) Working() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working
}

// Attempts returns how many requests were started since the last credential
// change.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Send uploads up. Without credentials, or once the attempt ceiling is
// reached, the payload is dropped. While a request is in flight the payload
// replaces any queued one.
func (c *Client) Send(up archive.Upload) {
	if up.Empty {
		c.logger.Debug("sync skipped, nothing to upload", logging.Int("watermark", up.Watermark))
		return
	}

	c.mu.Lock()
	if c.endpoint == "" || c.token == "" {
		c.mu.Unlock()
		c.logger.Debug("sync skipped, no credentials")
		return
	}
	if c.sending {
		replaced := c.hasQueued
		c.queued, c.hasQueued = up, true
		c.mu.Unlock()
		c.logger.Debug("sync queued behind in-flight request",
			logging.Int("records", len(up.Records)),
			logging.Bool("replaced", replaced),
		)
		return
	}
	started := c.startLocked(up)
	attempts := c.attempts
	c.mu.Unlock()
	if !started {
		c.warnDropped(up, attempts)
	}
}

// Wait blocks until no request is in flight or queued.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateCredentials replaces the endpoint and token. Invalid or unchanged
// values are ignored. A change resets the attempt counter.
func (c *Client) UpdateCredentials(endpoint, token string) bool {
	endpoint, token = strings.TrimSpace(endpoint), strings.TrimSpace(token)
	if err := ValidCredentials(endpoint, token); err != nil {
		c.logger.Info("redcap credentials not updated", logging.Error(err))
		return false
	}
	c.mu.Lock()
	if endpoint == c.endpoint && token == c.token {
		c.mu.Unlock()
		return false
	}
	c.endpoint, c.token = endpoint, token
	c.attempts = 0
	c.working = false
	c.mu.Unlock()

	c.logger.Info("redcap credentials updated", logging.String("url", endpoint))
	notifications.Emit(c.emitter, notifications.Event{Kind: notifications.CredentialsChanged})
	return true
}

// startLocked begins a request for up. It returns false when credentials are
// missing or the attempt ceiling is exceeded. Callers hold c.mu.
func (c *Client) startLocked(up archive.Upload) bool {
	if c.endpoint == "" || c.token == "" {
		return false
	}
	c.attempts++
	if c.attempts > c.maxAttempts {
		return false
	}
	if !c.sending {
		c.sending = true
		c.idle = make(chan struct{})
	}
	go c.post(c.endpoint, c.token, up)
	return true
}

func (c *Client) post(endpoint, token string, up archive.Upload) {
	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(services.WithRequestID(context.Background(), requestID), c.timeout)
	defer cancel()

	logger := c.logger.With(logging.String(logging.FieldCorrelationID, requestID))
	logger.Info("uploading picks",
		logging.Int("records", len(up.Records)),
		logging.Int("watermark", up.Watermark),
	)
	count, err := c.importRecords(ctx, endpoint, token, up)
	if err == nil && count <= 0 {
		err = services.Wrap(services.ErrRemote, "redcap", "import records", "no records accepted", nil)
	}
	if err != nil {
		logging.WarnWithContext(logger, "redcap upload failed", "redcap_upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redcap.url, the API token and network access"),
			logging.String(logging.FieldImpact, "picks remain queued for the next sync"),
		)
	} else {
		logger.Info("redcap upload accepted", logging.Int("count", count))
	}
	c.finish(up, count, err)
}

func (c *Client) finish(up archive.Upload, count int, err error) {
	c.mu.Lock()
	// Only a new credential pair clears working.
	if err == nil {
		c.working = true
	}
	next, follow := c.queued, c.hasQueued
	c.queued, c.hasQueued = archive.Upload{}, false
	c.mu.Unlock()

	notifications.Emit(c.emitter, notifications.Event{
		Kind:     notifications.SyncResponse,
		Count:    count,
		UploadID: up.ID,
		Err:      err,
	})
	if follow {
		notifications.Emit(c.emitter, notifications.Event{Kind: notifications.SyncReadyForMore})
	}

	c.mu.Lock()
	// Handlers may have queued a newer payload.
	if c.hasQueued {
		next, follow = c.queued, true
		c.queued, c.hasQueued = archive.Upload{}, false
	}
	if follow && c.startLocked(next) {
		c.mu.Unlock()
		return
	}
	attempts := c.attempts
	c.sending = false
	close(c.idle)
	c.mu.Unlock()
	if follow {
		c.warnDropped(next, attempts)
	}
}

func (c *Client) warnDropped(up archive.Upload, attempts int) {
	logging.WarnWithContext(c.logger, "redcap upload dropped", "redcap_upload_dropped",
		logging.Int("records", len(up.Records)),
		logging.Int("attempts", attempts),
		logging.Int("max_attempts", c.maxAttempts),
		logging.Alert("sync_stopped"),
		logging.String(logging.FieldErrorHint, "update the REDCap credentials to reset the attempt counter"),
		logging.String(logging.FieldImpact, "picks stay in the local workspace"),
	)
}

type importResponse struct {
	Count json.RawMessage `json:"count"`
	Error string          `json:"error"`
}

func (c *Client) importRecords(ctx context.Context, endpoint, token string, up archive.Upload) (int, error) {
	data, err := json.Marshal(up.Records)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "redcap", "encode records", "", err)
	}
	form := url.Values{}
	form.Set("token", token)
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("overwriteBehavior", "normal")
	form.Set("forceAutoNumber", "true")
	form.Set("data", string(data))
	form.Set("returnContent", "count")
	form.Set("returnFormat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "redcap", "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "redcap", "import records", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "redcap", "import records", "read response", err)
	}
	var decoded importResponse
	_ = json.Unmarshal(body, &decoded)
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(decoded.Error)
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return 0, services.Wrap(services.ErrRemote, "redcap", "import records",
			fmt.Sprintf("status %d: %s", resp.StatusCode, detail), nil)
	}
	if decoded.Error != "" {
		return 0, services.Wrap(services.ErrRemote, "redcap", "import records", decoded.Error, nil)
	}
	count, err := parseCount(decoded.Count)
	if err != nil {
		return 0, services.Wrap(services.ErrRemote, "redcap", "import records", "unexpected response", err)
	}
	return count, nil
}

// parseCount accepts the count as a JSON number or a quoted number.
func parseCount(raw json.RawMessage) (int, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" {
		return 0, fmt.Errorf("missing count")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", text, err)
	}
	return n, nil
}
