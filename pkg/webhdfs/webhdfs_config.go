package webhdfs

import (
	"fmt"
	"net/url"
)

// Config is the configuration for a Client
type Config struct {
	BaseURL string `mapstructure:"url" json:"url"`   // BaseURL is required, e.g. http://namenode:9870
	User    string `mapstructure:"user" json:"user"` // User is required, sent as user.name
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if c.User == "" {
		return ErrNoUser
	}

	return nil
}
