package config

const (
	defaultStagingDir         = "~/.local/share/vidpress/staging"
	defaultLogDir             = "~/.local/share/vidpress/logs"
	defaultBackendTimeout     = 30
	defaultChunkSizeMiB       = 8
	defaultStallTimeout       = 90
	defaultSessionReuseWindow = 60
	defaultEncodePollInterval = 2
	defaultEncodeMaxAttempts  = 150
	defaultNotifyTimeout      = 10
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Backend: Backend{
			RequestTimeout: defaultBackendTimeout,
		},
		Upload: Upload{
			ChunkSizeMiB:       defaultChunkSizeMiB,
			StallTimeout:       defaultStallTimeout,
			SessionReuseWindow: defaultSessionReuseWindow,
		},
		Encode: Encode{
			PollInterval: defaultEncodePollInterval,
			MaxAttempts:  defaultEncodeMaxAttempts,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Publish:        true,
			Queue:          true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
