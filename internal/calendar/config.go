package calendar

import (
	"fmt"
	"net/url"
)

// Config locates the CalDAV calendar backing the calendar group.
type Config struct {
	// URL is the CalDAV endpoint, e.g. https://dav.example.com/.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Calendar selects a calendar by display name or path. Empty
	// selects the first calendar that holds events.
	Calendar string `yaml:"calendar"`
}

// Configured reports whether an endpoint is set.
func (c Config) Configured() bool {
	return c.URL != ""
}

// Validate checks the endpoint when one is configured.
func (c Config) Validate() error {
	if !c.Configured() {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("calendar.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("calendar.url %q must be http or https", c.URL)
	}
	return nil
}
