package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeREDCap()
	c.normalizePicking()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WorkspaceDir, err = expandPath(strings.TrimSpace(c.Paths.WorkspaceDir)); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeREDCap() {
	if value, ok := os.LookupEnv("REDCAP_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.REDCap.URL = value
	}
	if value, ok := os.LookupEnv("REDCAP_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.REDCap.Token = value
	}
	c.REDCap.URL = strings.TrimSpace(c.REDCap.URL)
	c.REDCap.Token = strings.TrimSpace(c.REDCap.Token)
	if c.REDCap.MaxAttempts <= 0 {
		c.REDCap.MaxAttempts = defaultREDCapMaxAttempts
	}
	if c.REDCap.RequestTimeout <= 0 {
		c.REDCap.RequestTimeout = defaultREDCapRequestTimeout
	}
}

func (c *Config) normalizePicking() {
	if len(c.Picking.Channels) == 0 {
		return
	}
	channels := make([]string, 0, len(c.Picking.Channels))
	seen := make(map[string]struct{}, len(c.Picking.Channels))
	for _, name := range c.Picking.Channels {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		channels = append(channels, name)
	}
	c.Picking.Channels = channels
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
