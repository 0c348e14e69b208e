package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

const (
	// maxBodySize bounds each extracted text body.
	maxBodySize = 32 * 1024

	// maxRawMessageSize bounds how much of a message literal is buffered.
	maxRawMessageSize = 5 * 1024 * 1024
)

// ReadMessage fetches one message by UID and marks it seen.
func (c *Client) ReadMessage(ctx context.Context, folder string, uid uint32) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if folder == "" {
		folder = defaultFolder
	}
	if err := c.open(ctx, folder); err != nil {
		return nil, err
	}

	var set imap.UIDSet
	set.AddNum(imap.UID(uid))
	cmd := c.client.Fetch(set, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})

	data := cmd.Next()
	if data == nil {
		_ = cmd.Close()
		return nil, fmt.Errorf("message %d not found in %s", uid, folder)
	}

	msg := &Message{}
	var raw []byte
	for {
		item := data.Next()
		if item == nil {
			break
		}
		switch d := item.(type) {
		case imapclient.FetchItemDataUID:
			msg.UID = uint32(d.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range d.Flags {
				msg.Flags = append(msg.Flags, string(f))
			}
		case imapclient.FetchItemDataRFC822Size:
			msg.Size = uint32(d.Size)
		case imapclient.FetchItemDataEnvelope:
			applyEnvelope(msg, d.Envelope)
		case imapclient.FetchItemDataBodySection:
			// The literal must be consumed before the next item.
			if d.Literal == nil {
				continue
			}
			var err error
			raw, err = io.ReadAll(io.LimitReader(d.Literal, maxRawMessageSize))
			drainLiteral(d.Literal)
			if err != nil {
				c.logger.Debug("error reading body literal", "uid", uid, "error", err)
				raw = nil
			}
		}
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message %d: %w", uid, err)
	}

	if raw != nil {
		if err := parseBody(msg, bytes.NewReader(raw)); err != nil {
			c.logger.Debug("body parse error", "uid", uid, "error", err)
		}
	}
	return msg, nil
}

func applyEnvelope(msg *Message, env *imap.Envelope) {
	if env == nil {
		return
	}
	msg.Date = env.Date
	msg.Subject = env.Subject
	msg.MessageID = env.MessageID
	msg.InReplyTo = env.InReplyTo
	if len(env.From) > 0 {
		msg.From = formatAddress(env.From[0])
	}
	for _, a := range env.To {
		msg.To = append(msg.To, formatAddress(a))
	}
	for _, a := range env.Cc {
		msg.Cc = append(msg.Cc, formatAddress(a))
	}
	if len(env.ReplyTo) > 0 {
		msg.ReplyTo = formatAddress(env.ReplyTo[0])
	}
}

// parseBody walks the MIME tree for the first text/plain and text/html
// parts, the References header and attachment names. Unknown charsets
// are tolerated.
func parseBody(msg *Message, r io.Reader) error {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return fmt.Errorf("create mail reader: %w", err)
	}

	if refs, err := mr.Header.MsgIDList("References"); err == nil && len(refs) > 0 {
		msg.References = refs
	}
	if msg.MessageID == "" {
		msg.MessageID, _ = mr.Header.MessageID()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			ct, _, _ := h.ContentType()
			msg.Attachments = append(msg.Attachments, Attachment{Filename: name, ContentType: ct})
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			switch {
			case ct == "text/plain" && msg.TextBody == "":
				msg.TextBody = readLimited(part.Body)
			case ct == "text/html" && msg.HTMLBody == "":
				msg.HTMLBody = readLimited(part.Body)
			}
		}
	}
}

func readLimited(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return ""
	}
	text := string(body)
	if len(body) > maxBodySize {
		text = text[:maxBodySize] + "\n\n[truncated: message exceeds 32KB]"
	}
	return strings.TrimSpace(text)
}
