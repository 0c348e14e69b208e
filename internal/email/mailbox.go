package email

import (
	"context"
	"fmt"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const (
	defaultFolder      = "INBOX"
	defaultListLimit   = 10
	defaultSearchLimit = 20
)

// ListMessages returns the newest messages in a folder, newest first.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) ([]Envelope, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	return c.search(ctx, opts.Folder, &imap.SearchCriteria{}, opts.Limit)
}

// SearchMessages returns the newest messages whose text contains
// opts.Query.
func (c *Client) SearchMessages(ctx context.Context, opts SearchOptions) ([]Envelope, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}
	criteria := &imap.SearchCriteria{}
	if opts.Query != "" {
		criteria.Text = []string{opts.Query}
	}
	return c.search(ctx, opts.Folder, criteria, opts.Limit)
}

func (c *Client) search(ctx context.Context, folder string, criteria *imap.SearchCriteria, limit int) ([]Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if folder == "" {
		folder = defaultFolder
	}
	if err := c.open(ctx, folder); err != nil {
		return nil, err
	}

	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folder, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// Highest UIDs are the newest.
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	var set imap.UIDSet
	for _, uid := range uids {
		set.AddNum(uid)
	}
	return c.fetchEnvelopes(set)
}

// fetchEnvelopes fetches summaries newest first. Caller must hold c.mu.
func (c *Client) fetchEnvelopes(set imap.UIDSet) ([]Envelope, error) {
	cmd := c.client.Fetch(set, &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		Flags:      true,
		RFC822Size: true,
	})

	var out []Envelope
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		env := readEnvelope(msg)
		if env.UID == 0 {
			c.logger.Debug("skipping message without UID")
			continue
		}
		out = append(out, env)
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID > out[j].UID })
	return out, nil
}

func readEnvelope(msg *imapclient.FetchMessageData) Envelope {
	var env Envelope
	for {
		item := msg.Next()
		if item == nil {
			return env
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				env.Flags = append(env.Flags, string(f))
			}
		case imapclient.FetchItemDataRFC822Size:
			env.Size = uint32(data.Size)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				env.Date = data.Envelope.Date
				env.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					env.From = formatAddress(data.Envelope.From[0])
				}
				for _, a := range data.Envelope.To {
					env.To = append(env.To, formatAddress(a))
				}
			}
		case imapclient.FetchItemDataBodySection:
			drainLiteral(data.Literal)
		}
	}
}

func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}
