package docs

import (
	"fmt"
	"net/url"
)

// Config locates the WebDAV collection that holds documents.
type Config struct {
	// URL is the collection URL, e.g. https://dav.example.com/docs/.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether a collection is set.
func (c Config) Configured() bool {
	return c.URL != ""
}

// Validate checks the collection URL when one is configured.
func (c Config) Validate() error {
	if !c.Configured() {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("docs.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("docs.url %q must be http or https", c.URL)
	}
	return nil
}
