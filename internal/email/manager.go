package email

import (
	"fmt"
	"log/slog"
)

// Manager holds one lazily connected Client per configured account.
type Manager struct {
	clients map[string]*Client
	order   []string
	logger  *slog.Logger
}

// NewManager creates clients for every account in cfg.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	m := &Manager{
		clients: make(map[string]*Client, len(cfg.Accounts)),
		logger:  logger,
	}
	for _, acct := range cfg.Accounts {
		m.clients[acct.Name] = NewClient(acct.IMAP, logger.With("mail_account", acct.Name))
		m.order = append(m.order, acct.Name)
	}
	return m
}

// Account returns the named client, or the first account's client when
// name is empty.
func (m *Manager) Account(name string) (*Client, error) {
	if name == "" && len(m.order) > 0 {
		name = m.order[0]
	}
	client, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("mail account %q not found", name)
	}
	return client, nil
}

// Close closes every connection.
func (m *Manager) Close() {
	for _, name := range m.order {
		if err := m.clients[name].Close(); err != nil {
			m.logger.Warn("error closing mail client", "account", name, "error", err)
		}
	}
}
