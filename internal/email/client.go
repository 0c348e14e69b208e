package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
)

// dialTimeout bounds the TCP connect to the IMAP server.
const dialTimeout = 15 * time.Second

// Client is a Mailbox over one IMAP account. One command runs at a
// time; a connection that stops answering NOOP is replaced on the next
// use.
type Client struct {
	cfg    IMAPConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient returns a client that dials lazily.
func NewClient(cfg IMAPConfig, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) dial() (*imapclient.Client, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	c.logger.Debug("dialing imap", "addr", addr, "tls", c.cfg.TLS)

	var (
		ic  *imapclient.Client
		err error
	)
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: dialTimeout}}
	if c.cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: c.cfg.Host}
		ic, err = imapclient.DialTLS(addr, opts)
	} else {
		ic, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	if err := ic.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		ic.Close()
		return nil, fmt.Errorf("imap login %s: %w", c.cfg.Username, err)
	}
	c.logger.Info("imap connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return ic, nil
}

// live returns a working connection, redialing when the current one
// fails NOOP. c.mu must be held.
func (c *Client) live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.client != nil {
		if c.client.Noop().Wait() == nil {
			return nil
		}
		c.logger.Debug("imap connection stale", "host", c.cfg.Host)
		c.client.Close()
		c.client = nil
	}
	ic, err := c.dial()
	if err != nil {
		return err
	}
	c.client = ic
	return nil
}

// open makes sure the connection is up and folder is selected. c.mu
// must be held.
func (c *Client) open(ctx context.Context, folder string) error {
	if err := c.live(ctx); err != nil {
		return err
	}
	if _, err := c.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	return nil
}

// Ping verifies the account is reachable, reconnecting if needed.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live(ctx)
}

// Close drops the connection. The client redials if used again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
