package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nugget/aide/internal/tools"
)

// textPreviewLen bounds the echo of appended text in edit results.
const textPreviewLen = 100

// Tools backs the docs capability group.
type Tools struct {
	store  Store
	logger *slog.Logger
}

// NewTools creates the document operations over store.
func NewTools(store Store, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{store: store, logger: logger}
}

// Group returns the docs capability group.
func (t *Tools) Group() *tools.Group {
	markdown := tools.Param{
		Name: "format_as_markdown", Type: tools.TypeBoolean, Default: true,
		Description: "render markdown (# headers, **bold**, lists) into formatted text",
	}
	return &tools.Group{
		Category:    "docs",
		Description: "create, read, list and edit documents",
		Tools: []*tools.Tool{
			{
				Name:        "create_document",
				Description: "Create a new document with optional initial content",
				Params: []tools.Param{
					{Name: "title", Type: tools.TypeText, Required: true},
					{Name: "initial_content", Type: tools.TypeText, Default: ""},
					markdown,
				},
				Handler: t.handleCreate,
			},
			{
				Name:        "read_document",
				Description: "Read the text of a document",
				Params:      []tools.Param{{Name: "document_id", Type: tools.TypeText, Required: true}},
				Handler:     t.handleRead,
			},
			{
				Name:        "list_documents",
				Description: "List documents, most recently modified first",
				Params: []tools.Param{{
					Name: "max_results", Type: tools.TypeInteger, Default: 10,
				}},
				Handler: t.handleList,
			},
			{
				Name:        "edit_document",
				Description: "Append text to a document, or insert it at the beginning",
				Params: []tools.Param{
					{Name: "document_id", Type: tools.TypeText, Required: true},
					{Name: "text_to_append", Type: tools.TypeText, Required: true},
					{Name: "insert_at_beginning", Type: tools.TypeBoolean, Default: false},
					markdown,
				},
				Handler: t.handleEdit,
			},
		},
	}
}

func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type createResult struct {
	Status              string `json:"status"`
	DocumentID          string `json:"document_id"`
	Title               string `json:"title"`
	WebViewLink         string `json:"web_view_link"`
	InitialContentAdded bool   `json:"initial_content_added"`
	ContentLength       int    `json:"content_length"`
}

func (t *Tools) handleCreate(ctx context.Context, args map[string]any) (string, error) {
	title := strings.TrimSpace(tools.String(args, "title"))
	if title == "" {
		return "", errors.New("title must not be empty")
	}
	content := tools.String(args, "initial_content")
	body, err := toHTML(content, tools.Bool(args, "format_as_markdown", true))
	if err != nil {
		return "", err
	}

	id := newDocumentID()
	if err := t.store.Write(ctx, id, document{Title: title, Body: body}.render()); err != nil {
		return "", err
	}
	t.logger.Info("document created", "id", id, "title", title)

	return jsonResult(createResult{
		Status:              "success",
		DocumentID:          id,
		Title:               title,
		WebViewLink:         t.store.Link(id),
		InitialContentAdded: content != "",
		ContentLength:       utf8.RuneCountInString(content),
	})
}

type readResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	WordCount  int    `json:"word_count"`
}

func (t *Tools) load(ctx context.Context, id string) (document, error) {
	data, err := t.store.Read(ctx, id)
	if err != nil {
		return document{}, err
	}
	d, err := parseDocument(data)
	if err != nil {
		return document{}, err
	}
	if d.Title == "" {
		d.Title = "Untitled"
	}
	return d, nil
}

func (t *Tools) handleRead(ctx context.Context, args map[string]any) (string, error) {
	id := tools.String(args, "document_id")
	d, err := t.load(ctx, id)
	if err != nil {
		return "", err
	}
	text := d.Text()
	return jsonResult(readResult{
		Status:     "success",
		DocumentID: id,
		Title:      d.Title,
		Content:    text,
		WordCount:  len(strings.Fields(text)),
	})
}

type listedDocument struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modified_time"`
	WebViewLink  string `json:"web_view_link"`
}

type listResult struct {
	Status    string           `json:"status"`
	Documents []listedDocument `json:"documents"`
	Count     int              `json:"count"`
}

func (t *Tools) handleList(ctx context.Context, args map[string]any) (string, error) {
	limit := tools.Int(args, "max_results", 10)
	if limit <= 0 {
		limit = 10
	}
	entries, err := t.store.List(ctx)
	if err != nil {
		return "", err
	}
	sortNewest(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	docs := make([]listedDocument, 0, len(entries))
	for _, e := range entries {
		name := "Untitled"
		if d, err := t.load(ctx, e.ID); err == nil {
			name = d.Title
		} else {
			t.logger.Warn("document unreadable", "id", e.ID, "error", err)
		}
		var modified string
		if !e.Modified.IsZero() {
			modified = e.Modified.UTC().Format(time.RFC3339)
		}
		docs = append(docs, listedDocument{ID: e.ID, Name: name, ModifiedTime: modified, WebViewLink: t.store.Link(e.ID)})
	}
	return jsonResult(listResult{Status: "success", Documents: docs, Count: len(docs)})
}

type editResult struct {
	Status        string `json:"status"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	Action        string `json:"action"`
	Formatted     bool   `json:"formatted"`
	TextAdded     string `json:"text_added"`
}

func (t *Tools) handleEdit(ctx context.Context, args map[string]any) (string, error) {
	id := tools.String(args, "document_id")
	text := tools.String(args, "text_to_append")
	atStart := tools.Bool(args, "insert_at_beginning", false)
	formatted := tools.Bool(args, "format_as_markdown", true)

	d, err := t.load(ctx, id)
	if err != nil {
		return "", err
	}
	fragment, err := toHTML(text, formatted)
	if err != nil {
		return "", err
	}
	action := "appended at end"
	if atStart {
		d.Body = fragment + "\n" + d.Body
		action = "inserted at beginning"
	} else {
		d.Body = d.Body + "\n" + fragment
	}
	if err := t.store.Write(ctx, id, d.render()); err != nil {
		return "", err
	}

	added := text
	if utf8.RuneCountInString(added) > textPreviewLen {
		added = string([]rune(added)[:textPreviewLen]) + "..."
	}
	return jsonResult(editResult{
		Status:        "success",
		DocumentID:    id,
		DocumentTitle: d.Title,
		Action:        action,
		Formatted:     formatted,
		TextAdded:     added,
	})
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
