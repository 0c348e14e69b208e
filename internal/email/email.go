// Package email implements the mail capability group over IMAP for
// reading and SMTP for sending. Messages are composed with go-message;
// HTML bodies are rendered from markdown with goldmark.
package email

import (
	"context"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// drainLiteral reads and discards an IMAP literal so an unread body
// section does not stall the stream.
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// Envelope is the summary of a message shown in list and search results.
type Envelope struct {
	UID     uint32
	Date    time.Time
	From    string
	To      []string
	Subject string
	Flags   []string
	Size    uint32
}

// Seen reports whether the \Seen flag is set.
func (e Envelope) Seen() bool {
	for _, f := range e.Flags {
		if f == string(imap.FlagSeen) {
			return true
		}
	}
	return false
}

// Message is a fully fetched message with its text bodies extracted.
type Message struct {
	Envelope

	MessageID  string
	InReplyTo  []string
	References []string
	Cc         []string
	ReplyTo    string

	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment describes a non-inline MIME part. Contents are not kept.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// ListOptions controls ListMessages.
type ListOptions struct {
	Folder string
	Limit  int
}

// SearchOptions controls SearchMessages. Query is matched against the
// full message text.
type SearchOptions struct {
	Folder string
	Query  string
	Limit  int
}

// Mailbox is the read side of an account.
type Mailbox interface {
	ListMessages(ctx context.Context, opts ListOptions) ([]Envelope, error)
	SearchMessages(ctx context.Context, opts SearchOptions) ([]Envelope, error)
	ReadMessage(ctx context.Context, folder string, uid uint32) (*Message, error)
}

// Sender delivers a composed RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, from string, recipients []string, msg []byte) error
}
