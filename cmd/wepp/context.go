package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wepp/internal/config"
	"wepp/internal/erp"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/peaks"
	"wepp/internal/project"
	"wepp/internal/redcap"
	"wepp/internal/services"
	"wepp/internal/session"
	"wepp/internal/workspace"
)

// syncWaitTimeout bounds how long a command waits for in-flight uploads
// before exiting.
const syncWaitTimeout = 2 * time.Minute

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	sessionID  string

	// httpClient overrides the REDCap transport.
	httpClient redcap.HTTPDoer
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

// withHTTPClient replaces the transport used for REDCap requests.
func withHTTPClient(doer redcap.HTTPDoer) contextOption {
	return func(c *commandContext) {
		c.httpClient = doer
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// baseContext tags ctx with the run's session id so every log line of one
// invocation can be correlated.
func (c *commandContext) baseContext(ctx context.Context) context.Context {
	c.ensureLogger()
	if ctx == nil {
		ctx = context.Background()
	}
	return services.WithSessionID(ctx, c.sessionID)
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.sessionID = uuid.NewString()
		cfg, _ := c.ensureConfig()
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger.With(logging.String(logging.FieldSessionID, c.sessionID))
	})
	return c.logger
}

// engine is everything a command needs to work on one recording directory.
type engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	dir      string
	listing  erp.Listing
	settings *project.Settings
	store    *workspace.Store
	hub      *notifications.Hub
	client   *redcap.Client
	session  *session.Session
	resumed  bool
}

// openEngine loads the recordings in dir, restores the workspace and opens
// an annotation session over them.
func (c *commandContext) openEngine(ctx context.Context, dir string) (*engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.ensureLogger()

	dir, err = resolveDir(dir)
	if err != nil {
		return nil, err
	}
	listing, err := erp.List(dir)
	if err != nil {
		return nil, err
	}
	settings, found, err := project.Load(dir)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Debug("no project file, using defaults", logging.String("dir", dir))
	}

	store, err := workspace.Open(ctx, cfg.WorkspacePath(dir))
	if err != nil {
		if errors.Is(err, workspace.ErrLocked) {
			return nil, fmt.Errorf("workspace for %s is in use by another wepp process", dir)
		}
		return nil, err
	}
	state, resumed, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	hub := notifications.NewHub()
	client := newREDCapClient(cfg, &settings, hub, logger, c.httpClient)
	notifications.Forward(hub, notifications.NewService(cfg), logger, notifications.ForwardOptions{
		Dataset:         dir,
		Recordings:      len(listing.Recordings),
		SessionComplete: cfg.Notifications.SessionComplete,
		SyncFailure:     cfg.Notifications.SyncFailure,
		Timeout:         time.Duration(cfg.Notifications.RequestTimeout) * time.Second,
	})
	hub.On(notifications.SyncResponse, func(e notifications.Event) {
		if e.Succeeded() {
			logger.Info("redcap accepted records", logging.Int("count", e.Count))
		}
	})

	opts := session.Options{
		Listing:  listing,
		Settings: &settings,
		Windows:  configWindows(cfg),
		Channels: cfg.Picking.Channels,
		Store:    store,
		Hub:      hub,
		Logger:   logger,
	}
	if client.Enabled() {
		opts.Sync = client
	}
	if resumed {
		opts.Resume = &state
	}
	sess := session.New(opts)
	if err := sess.Open(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &engine{
		cfg:      cfg,
		logger:   logger,
		dir:      dir,
		listing:  listing,
		settings: &settings,
		store:    store,
		hub:      hub,
		client:   client,
		session:  sess,
		resumed:  resumed,
	}, nil
}

// Close waits for in-flight uploads so their confirmations are persisted,
// then releases the workspace.
func (e *engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), syncWaitTimeout)
	defer cancel()
	var waitErr error
	if err := e.client.Wait(ctx); err != nil {
		logging.WarnWithContext(e.logger, "upload still in flight at exit", "redcap_wait_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unconfirmed records are sent again next run"),
		)
		waitErr = fmt.Errorf("wait for redcap: %w", err)
	}
	return errors.Join(waitErr, e.store.Close())
}

// newREDCapClient builds the sync client from config. Credentials in the
// project file replace the configured ones while sync is enabled.
func newREDCapClient(cfg *config.Config, settings *project.Settings, hub *notifications.Hub, logger *slog.Logger, doer redcap.HTTPDoer) *redcap.Client {
	opts := redcap.Options{
		MaxAttempts: cfg.REDCap.MaxAttempts,
		Timeout:     time.Duration(cfg.REDCap.RequestTimeout) * time.Second,
		HTTPClient:  doer,
		Emitter:     hub,
		Logger:      logger,
	}
	if cfg.REDCap.Enabled {
		opts.URL, opts.Token = cfg.REDCap.URL, cfg.REDCap.Token
	}
	client := redcap.New(opts)
	if cfg.REDCap.Enabled && strings.TrimSpace(settings.REDCapToken) != "" {
		client.UpdateCredentials(settings.REDCapURL, settings.REDCapToken)
	}
	return client
}

func configWindows(cfg *config.Config) []project.DefaultWindow {
	var windows []project.DefaultWindow
	positive, negative := cfg.DefaultWindows()
	if positive != nil {
		windows = append(windows, project.DefaultWindow{Polarity: peaks.Positive, Window: peaks.Window{Start: positive.Start, End: positive.End}})
	}
	if negative != nil {
		windows = append(windows, project.DefaultWindow{Polarity: peaks.Negative, Window: peaks.Window{Start: negative.Start, End: negative.End}})
	}
	return windows
}

func resolveDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("recording directory is required")
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", dir, err)
	}
	return expanded, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
