package testsupport

import (
	"path/filepath"
	"testing"

	"wepp/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Logging.RetentionDays = 0
	cfgVal.REDCap.URL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithREDCap enables uploads against the given endpoint.
func WithREDCap(url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.REDCap.Enabled = true
		b.cfg.REDCap.URL = url
		b.cfg.REDCap.Token = token
	}
}

// WithDefaultWindows sets the picking windows applied to untouched segments.
func WithDefaultWindows(positive, negative []float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Picking.PositiveWindow = positive
		b.cfg.Picking.NegativeWindow = negative
	}
}

// WithChannels sets the configured channel selection.
func WithChannels(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Picking.Channels = names
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
