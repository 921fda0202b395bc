package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants that cannot be defaulted away.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		problems = append(problems, "backend.base_url must be set")
	} else if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("backend.base_url is not a valid URL: %v", err))
	}
	if strings.TrimSpace(c.Backend.Brand) == "" {
		problems = append(problems, "backend.brand must be set")
	}

	// A non-positive stall timeout disables the upload watchdog, and a
	// non-positive poll interval or attempt cap removes the transcode
	// wait bound. Neither is a usable configuration.
	if c.Upload.StallTimeout <= 0 {
		problems = append(problems, "upload.stall_timeout must be positive")
	}
	if c.Encode.PollInterval <= 0 {
		problems = append(problems, "encode.poll_interval must be positive")
	}
	if c.Encode.MaxAttempts <= 0 {
		problems = append(problems, "encode.max_attempts must be positive")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
