package config

import "time"

// Interval fields are stored as integer seconds in TOML; these accessors
// convert them for callers.

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Upload.StallTimeout) * time.Second
}

func (c *Config) SessionReuseWindow() time.Duration {
	return time.Duration(c.Upload.SessionReuseWindow) * time.Second
}

// ChunkSize returns the upload chunk size in bytes.
func (c *Config) ChunkSize() int64 {
	return int64(c.Upload.ChunkSizeMiB) * 1024 * 1024
}

func (c *Config) EncodePollInterval() time.Duration {
	return time.Duration(c.Encode.PollInterval) * time.Second
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}
