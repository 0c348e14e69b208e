package email

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// Content types accepted by the compose operations.
const (
	ContentHTML = "html"
	ContentText = "text"
)

// ComposeOptions describes an outbound message.
type ComposeOptions struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string

	// Body is markdown, or HTML when it already contains markup.
	Body string

	// ContentType is ContentHTML (the default) or ContentText.
	ContentType string

	InReplyTo  string
	References []string

	Date time.Time
}

// ComposeMessage builds an RFC 5322 message and returns it with its
// generated Message-ID. HTML messages carry a text/plain alternative.
func ComposeMessage(opts ComposeOptions) ([]byte, string, error) {
	var h mail.Header
	if opts.Date.IsZero() {
		opts.Date = time.Now()
	}
	h.SetDate(opts.Date)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generate message-id: %w", err)
	}
	id, _ := h.MessageID()
	h.SetSubject(opts.Subject)

	from, err := mail.ParseAddress(opts.From)
	if err != nil {
		return nil, "", fmt.Errorf("parse from address %q: %w", opts.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	for _, field := range []struct {
		key   string
		addrs []string
	}{{"To", opts.To}, {"Cc", opts.Cc}, {"Bcc", opts.Bcc}} {
		if len(field.addrs) == 0 {
			continue
		}
		list, err := parseAddressList(field.addrs)
		if err != nil {
			return nil, "", fmt.Errorf("parse %s addresses: %w", strings.ToLower(field.key), err)
		}
		h.SetAddressList(field.key, list)
	}

	if opts.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{opts.InReplyTo})
	}
	if len(opts.References) > 0 {
		h.SetMsgIDList("References", opts.References)
	}

	var buf bytes.Buffer
	if opts.ContentType == ContentText {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, "", fmt.Errorf("create mail writer: %w", err)
		}
		if _, err := io.WriteString(w, opts.Body); err != nil {
			return nil, "", fmt.Errorf("write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close mail writer: %w", err)
		}
		return buf.Bytes(), id, nil
	}

	htmlBody, plainBody, err := renderBodies(opts.Body)
	if err != nil {
		return nil, "", err
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("create inline writer: %w", err)
	}
	for _, part := range []struct{ ctype, body string }{
		{"text/plain", plainBody},
		{"text/html", htmlBody},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.ctype, map[string]string{"charset": "utf-8"})
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, "", fmt.Errorf("create %s part: %w", part.ctype, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, "", fmt.Errorf("write %s part: %w", part.ctype, err)
		}
		if err := pw.Close(); err != nil {
			return nil, "", fmt.Errorf("close %s part: %w", part.ctype, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), id, nil
}

func parseAddressList(addrs []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

var (
	htmlTag      = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// renderBodies returns the HTML and plain renditions of body. Bodies
// that already contain tags are used as HTML verbatim; anything else is
// rendered as markdown.
func renderBodies(body string) (htmlBody, plainBody string, err error) {
	if htmlTag.MatchString(body) {
		plain := htmlTag.ReplaceAllString(strings.NewReplacer("<br>", "\n", "<br/>", "\n", "</p>", "\n\n").Replace(body), "")
		return wrapHTML(body), strings.TrimSpace(html.UnescapeString(plain)), nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return "", "", fmt.Errorf("render markdown: %w", err)
	}
	return wrapHTML(buf.String()), markdownToPlain(body), nil
}

func wrapHTML(fragment string) string {
	return `<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
` + fragment + `
</body></html>`
}

func markdownToPlain(md string) string {
	s := mdLink.ReplaceAllString(md, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// replySubject prefixes "Re: " once.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// forwardSubject prefixes "Fwd: " once.
func forwardSubject(subject string) string {
	if subject == "" {
		subject = "No Subject"
	}
	lower := strings.ToLower(subject)
	if strings.HasPrefix(lower, "fwd:") || strings.HasPrefix(lower, "fw:") {
		return subject
	}
	return "Fwd: " + subject
}

// forwardBody places note above the original message's headers and
// body, in the requested content type.
func forwardBody(note string, orig *Message, contentType string) string {
	headers := []string{
		"---------- Forwarded message ----------",
		"From: " + orig.From,
		"Date: " + orig.Date.Format(time.RFC1123Z),
		"Subject: " + orig.Subject,
		"To: " + strings.Join(orig.To, ", "),
	}

	if contentType == ContentText {
		var sb strings.Builder
		if note != "" {
			sb.WriteString(note)
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.Join(headers, "\n"))
		sb.WriteString("\n\n")
		sb.WriteString(orig.TextBody)
		return sb.String()
	}

	var sb strings.Builder
	if note != "" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(note), &buf); err == nil {
			sb.WriteString(buf.String())
		} else {
			sb.WriteString("<p>" + html.EscapeString(note) + "</p>")
		}
		sb.WriteString("<br>")
	}
	for i := range headers {
		headers[i] = html.EscapeString(headers[i])
	}
	sb.WriteString("<p>" + strings.Join(headers, "<br>") + "</p>")
	switch {
	case orig.HTMLBody != "":
		sb.WriteString(orig.HTMLBody)
	default:
		sb.WriteString("<p>" + strings.ReplaceAll(html.EscapeString(orig.TextBody), "\n", "<br>") + "</p>")
	}
	return sb.String()
}
