package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. The REDCap URL shape and token
// length are checked by the sync client when credentials are applied.
func (c *Config) Validate() error {
	if err := c.validateREDCap(); err != nil {
		return err
	}
	if err := c.validatePicking(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateREDCap() error {
	if c.REDCap.MaxAttempts <= 0 {
		return errors.New("redcap.max_attempts must be positive")
	}
	if c.REDCap.RequestTimeout <= 0 {
		return errors.New("redcap.request_timeout must be positive")
	}
	if !c.REDCap.Enabled {
		return nil
	}
	if strings.TrimSpace(c.REDCap.URL) == "" {
		return errors.New("redcap.url must be set when redcap.enabled is true")
	}
	if strings.TrimSpace(c.REDCap.Token) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/wepp/config.toml"
		}
		return fmt.Errorf("redcap.token must be set when redcap.enabled is true. Set REDCAP_API_TOKEN or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validatePicking() error {
	if err := validateWindow("picking.positive_window", c.Picking.PositiveWindow); err != nil {
		return err
	}
	return validateWindow("picking.negative_window", c.Picking.NegativeWindow)
}

func validateWindow(key string, bounds []float64) error {
	switch len(bounds) {
	case 0:
		return nil
	case 2:
		if bounds[0] >= bounds[1] {
			return fmt.Errorf("%s start must be before end", key)
		}
		return nil
	default:
		return fmt.Errorf("%s must have exactly two values [start, end]", key)
	}
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
