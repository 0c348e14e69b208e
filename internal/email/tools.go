package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nugget/aide/internal/tools"
)

// ErrSendDisabled is returned by sending operations when the account
// has no SMTP configuration.
var ErrSendDisabled = errors.New("sending is not configured for this mail account")

// Tools backs the mail capability group.
type Tools struct {
	box      Mailbox
	sender   Sender
	from     string
	bccOwner string
	contacts ContactResolver
	logger   *slog.Logger
}

// Options configures Tools. Sender may be nil for a read-only account.
type Options struct {
	Sender   Sender
	From     string
	BccOwner string
	Contacts ContactResolver
	Logger   *slog.Logger
}

// NewTools creates the mail operations over box.
func NewTools(box Mailbox, opts Options) *Tools {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		box:      box,
		sender:   opts.Sender,
		from:     opts.From,
		bccOwner: opts.BccOwner,
		contacts: opts.Contacts,
		logger:   logger,
	}
}

var contentTypeParam = tools.Param{
	Name:        "content_type",
	Type:        tools.TypeEnum,
	Enum:        []string{ContentHTML, ContentText},
	Default:     ContentHTML,
	Description: `"html" renders markdown (use **bold** for key points), "text" sends plain text`,
}

// Group returns the mail capability group.
func (t *Tools) Group() *tools.Group {
	return &tools.Group{
		Category:    "mail",
		Aliases:     []string{"gmail"},
		Description: "send, list, read, search, reply to and forward email",
		Tools: []*tools.Tool{
			{
				Name:        "send_email",
				Description: "Send an email",
				Params: []tools.Param{
					{Name: "recipient_email_address", Type: tools.TypeText, Required: true, Description: "recipient address"},
					{Name: "email_subject", Type: tools.TypeText, Required: true},
					{Name: "email_content", Type: tools.TypeText, Required: true},
					contentTypeParam,
				},
				Handler: t.handleSend,
			},
			{
				Name:        "list_emails",
				Description: "List the newest emails in a folder",
				Params: []tools.Param{
					{Name: "folder", Type: tools.TypeText, Default: defaultFolder},
					{Name: "limit", Type: tools.TypeInteger, Default: defaultListLimit, Description: "max emails, up to 50"},
				},
				Handler: t.handleList,
			},
			{
				Name:        "read_email",
				Description: "Read the full content of an email",
				Params: []tools.Param{
					{Name: "email_id", Type: tools.TypeText, Required: true, Description: "id from list_emails or search_emails"},
					{Name: "folder", Type: tools.TypeText, Default: defaultFolder},
				},
				Handler: t.handleRead,
			},
			{
				Name:        "search_emails",
				Description: "Search emails by text",
				Params: []tools.Param{
					{Name: "query", Type: tools.TypeText, Required: true},
					{Name: "folder", Type: tools.TypeText, Default: defaultFolder},
					{Name: "limit", Type: tools.TypeInteger, Default: defaultSearchLimit},
				},
				Handler: t.handleSearch,
			},
			{
				Name:        "reply_email",
				Description: "Reply to an email in its thread",
				Params: []tools.Param{
					{Name: "email_id", Type: tools.TypeText, Required: true},
					{Name: "reply_content", Type: tools.TypeText, Required: true},
					contentTypeParam,
				},
				Handler: t.handleReply,
			},
			{
				Name:        "forward_email",
				Description: "Forward an email with an optional note",
				Params: []tools.Param{
					{Name: "email_id", Type: tools.TypeText, Required: true},
					{Name: "recipient_email", Type: tools.TypeText, Required: true},
					{Name: "forward_message", Type: tools.TypeText, Default: ""},
					contentTypeParam,
				},
				Handler: t.handleForward,
			},
		},
	}
}

type emailSummary struct {
	EmailID    string `json:"email_id"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Date       string `json:"date"`
	ReadStatus string `json:"read_status"`
}

func summarize(envs []Envelope) []emailSummary {
	out := make([]emailSummary, 0, len(envs))
	for _, e := range envs {
		status := "unread"
		if e.Seen() {
			status = "read"
		}
		subject := e.Subject
		if subject == "" {
			subject = "No Subject"
		}
		out = append(out, emailSummary{
			EmailID:    strconv.FormatUint(uint64(e.UID), 10),
			From:       e.From,
			Subject:    subject,
			Date:       e.Date.Format("2006-01-02 15:04"),
			ReadStatus: status,
		})
	}
	return out
}

func (t *Tools) handleList(ctx context.Context, args map[string]any) (string, error) {
	envs, err := t.box.ListMessages(ctx, ListOptions{
		Folder: tools.String(args, "folder"),
		Limit:  tools.Int(args, "limit", defaultListLimit),
	})
	if err != nil {
		return "", err
	}
	emails := summarize(envs)
	return jsonResult(map[string]any{"status": "success", "emails": emails, "count": len(emails)})
}

func (t *Tools) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query := tools.String(args, "query")
	envs, err := t.box.SearchMessages(ctx, SearchOptions{
		Folder: tools.String(args, "folder"),
		Query:  query,
		Limit:  tools.Int(args, "limit", defaultSearchLimit),
	})
	if err != nil {
		return "", err
	}
	emails := summarize(envs)
	return jsonResult(map[string]any{"status": "success", "emails": emails, "count": len(emails), "query": query})
}

func (t *Tools) handleRead(ctx context.Context, args map[string]any) (string, error) {
	uid, err := parseEmailID(tools.String(args, "email_id"))
	if err != nil {
		return "", err
	}
	msg, err := t.box.ReadMessage(ctx, tools.String(args, "folder"), uid)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status":           "success",
		"email_id":         strconv.FormatUint(uint64(uid), 10),
		"from":             msg.From,
		"to":               strings.Join(msg.To, ", "),
		"cc":               strings.Join(msg.Cc, ", "),
		"subject":          msg.Subject,
		"date":             msg.Date.Format("2006-01-02 15:04 MST"),
		"body_text":        msg.TextBody,
		"body_html":        msg.HTMLBody,
		"attachments":      nonNil(msg.Attachments),
		"attachment_count": len(msg.Attachments),
	})
}

func (t *Tools) handleSend(ctx context.Context, args map[string]any) (string, error) {
	to := tools.String(args, "recipient_email_address")
	subject := tools.String(args, "email_subject")
	ctype := tools.String(args, "content_type")

	id, notes, err := t.send(ctx, ComposeOptions{
		To:          []string{to},
		Subject:     subject,
		Body:        tools.String(args, "email_content"),
		ContentType: ctype,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(withNotes(map[string]any{
		"status":       "success",
		"from":         t.from,
		"to":           to,
		"subject":      subject,
		"content_type": ctype,
		"message_id":   id,
		"message":      "Email sent successfully",
	}, notes))
}

func (t *Tools) handleReply(ctx context.Context, args map[string]any) (string, error) {
	uid, err := parseEmailID(tools.String(args, "email_id"))
	if err != nil {
		return "", err
	}
	orig, err := t.box.ReadMessage(ctx, defaultFolder, uid)
	if err != nil {
		return "", fmt.Errorf("load original: %w", err)
	}

	to := orig.ReplyTo
	if to == "" {
		to = orig.From
	}
	refs := orig.References
	if orig.MessageID != "" {
		refs = append(append([]string(nil), refs...), orig.MessageID)
	}

	id, notes, err := t.send(ctx, ComposeOptions{
		To:          []string{to},
		Subject:     replySubject(orig.Subject),
		Body:        tools.String(args, "reply_content"),
		ContentType: tools.String(args, "content_type"),
		InReplyTo:   orig.MessageID,
		References:  refs,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(withNotes(map[string]any{
		"status":            "success",
		"reply_to":          to,
		"original_email_id": strconv.FormatUint(uint64(uid), 10),
		"reply_message_id":  id,
		"message":           "Reply sent in thread successfully",
	}, notes))
}

func (t *Tools) handleForward(ctx context.Context, args map[string]any) (string, error) {
	uid, err := parseEmailID(tools.String(args, "email_id"))
	if err != nil {
		return "", err
	}
	orig, err := t.box.ReadMessage(ctx, defaultFolder, uid)
	if err != nil {
		return "", fmt.Errorf("load original: %w", err)
	}

	to := tools.String(args, "recipient_email")
	ctype := tools.String(args, "content_type")
	subject := forwardSubject(orig.Subject)

	id, notes, err := t.send(ctx, ComposeOptions{
		To:          []string{to},
		Subject:     subject,
		Body:        forwardBody(tools.String(args, "forward_message"), orig, ctype),
		ContentType: ctype,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(withNotes(map[string]any{
		"status":             "success",
		"forwarded_to":       to,
		"subject":            subject,
		"original_email_id":  strconv.FormatUint(uint64(uid), 10),
		"forward_message_id": id,
		"message":            "Email forwarded with original content successfully",
	}, notes))
}

// send composes and delivers opts from the account address, adding the
// owner as Bcc when configured.
func (t *Tools) send(ctx context.Context, opts ComposeOptions) (string, []string, error) {
	if t.sender == nil {
		return "", nil, ErrSendDisabled
	}
	opts.From = t.from
	recipients := collectRecipients(opts.To, opts.Cc)
	if t.bccOwner != "" && !contains(recipients, bareAddress(t.bccOwner)) {
		opts.Bcc = append(opts.Bcc, t.bccOwner)
	}

	raw, id, err := ComposeMessage(opts)
	if err != nil {
		return "", nil, err
	}
	notes := unknownRecipients(ctx, t.contacts, recipients)
	if err := t.sender.Send(ctx, t.from, collectRecipients(opts.To, opts.Cc, opts.Bcc), raw); err != nil {
		return "", nil, fmt.Errorf("send: %w", err)
	}
	t.logger.Info("email sent", "to", recipients, "subject", opts.Subject)
	return id, notes, nil
}

func parseEmailID(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid email_id %q", s)
	}
	return uint32(n), nil
}

func withNotes(m map[string]any, notes []string) map[string]any {
	if len(notes) > 0 {
		m["recipient_notes"] = notes
	}
	return m
}

func nonNil(a []Attachment) []Attachment {
	if a == nil {
		return []Attachment{}
	}
	return a
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
