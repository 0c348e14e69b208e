package email

import "fmt"

// Config holds the mail accounts. The first account backs the mail
// capability group.
type Config struct {
	// BccOwner receives a blind copy of every outbound message unless
	// already a recipient.
	BccOwner string `yaml:"bcc_owner"`

	Accounts []AccountConfig `yaml:"accounts"`
}

// Configured reports whether at least one account has an IMAP host and
// username.
func (c Config) Configured() bool {
	for _, a := range c.Accounts {
		if a.IMAP.Host != "" && a.IMAP.Username != "" {
			return true
		}
	}
	return false
}

// Primary returns the first account.
func (c Config) Primary() (AccountConfig, bool) {
	if len(c.Accounts) == 0 {
		return AccountConfig{}, false
	}
	return c.Accounts[0], true
}

// ApplyDefaults fills ports and TLS settings. IMAP uses TLS unless the
// port is 143; SMTP uses STARTTLS unless the port is 465.
func (c *Config) ApplyDefaults() {
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.IMAP.Port == 0 {
			a.IMAP.Port = 993
		}
		if !a.IMAP.TLS && a.IMAP.Port != 143 {
			a.IMAP.TLS = true
		}
		if a.SMTP.Host != "" {
			if a.SMTP.Port == 0 {
				a.SMTP.Port = 587
			}
			if !a.SMTP.StartTLS && a.SMTP.Port != 465 {
				a.SMTP.StartTLS = true
			}
		}
		if a.DefaultFrom == "" {
			a.DefaultFrom = a.IMAP.Username
		}
	}
}

// Validate returns the first inconsistency found.
func (c Config) Validate() error {
	names := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("mail.accounts[%d].name must not be empty", i)
		}
		if names[a.Name] {
			return fmt.Errorf("mail.accounts[%d].name %q is a duplicate", i, a.Name)
		}
		names[a.Name] = true

		if a.IMAP.Host == "" {
			return fmt.Errorf("mail.accounts[%d] (%s): imap.host is required", i, a.Name)
		}
		if a.IMAP.Username == "" {
			return fmt.Errorf("mail.accounts[%d] (%s): imap.username is required", i, a.Name)
		}
		if a.IMAP.Port < 1 || a.IMAP.Port > 65535 {
			return fmt.Errorf("mail.accounts[%d] (%s): imap.port %d out of range (1-65535)", i, a.Name, a.IMAP.Port)
		}
		if a.SMTP.Host != "" {
			if a.SMTP.Username == "" {
				return fmt.Errorf("mail.accounts[%d] (%s): smtp.username is required when smtp.host is set", i, a.Name)
			}
			if a.SMTP.Port < 1 || a.SMTP.Port > 65535 {
				return fmt.Errorf("mail.accounts[%d] (%s): smtp.port %d out of range (1-65535)", i, a.Name, a.SMTP.Port)
			}
		}
	}
	return nil
}

// AccountConfig describes one mailbox with IMAP and optional SMTP.
type AccountConfig struct {
	Name string     `yaml:"name"`
	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`

	// DefaultFrom is the From address, e.g. "Ann <ann@example.com>".
	// Defaults to the IMAP username.
	DefaultFrom string `yaml:"default_from"`
}

// SMTPConfigured reports whether the account can send.
func (a AccountConfig) SMTPConfigured() bool {
	return a.SMTP.Host != "" && a.SMTP.Username != ""
}

// IMAPConfig holds IMAP connection parameters.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
}
