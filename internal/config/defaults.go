package config

const (
	defaultLogDir               = "~/.local/share/wepp/logs"
	defaultWorkspaceName        = ".wepp"
	defaultREDCapURL            = "https://poa-redcap.med.yale.edu/api/"
	defaultREDCapMaxAttempts    = 10
	defaultREDCapRequestTimeout = 30
	defaultNtfyRequestTimeout   = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		REDCap: REDCap{
			URL:            defaultREDCapURL,
			MaxAttempts:    defaultREDCapMaxAttempts,
			RequestTimeout: defaultREDCapRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNtfyRequestTimeout,
			SessionComplete: true,
			SyncFailure:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
