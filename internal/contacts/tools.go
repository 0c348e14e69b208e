package contacts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nugget/aide/internal/tools"
)

// Tools backs the contacts capability group.
type Tools struct {
	store *Store
}

// NewTools creates the contacts operations over store.
func NewTools(store *Store) *Tools {
	return &Tools{store: store}
}

// Group returns the contacts capability group.
func (t *Tools) Group() *tools.Group {
	text := func(name, desc string) tools.Param {
		return tools.Param{Name: name, Type: tools.TypeText, Default: "", Description: desc}
	}
	return &tools.Group{
		Category:    "contacts",
		Description: "search and manage contacts (email, phone, relationship)",
		Tools: []*tools.Tool{
			{
				Name:        "search_contacts_list",
				Description: "Search contacts by name, email, phone or relationship",
				Params:      []tools.Param{{Name: "query", Type: tools.TypeText, Required: true}},
				Handler:     t.handleSearch,
			},
			{
				Name:        "list_all_contacts",
				Description: "List all contacts",
				Handler:     t.handleList,
			},
			{
				Name:        "add_contact",
				Description: "Add a new contact",
				Params: []tools.Param{
					{Name: "name", Type: tools.TypeText, Required: true, Description: "full name"},
					text("email", ""),
					text("phone", ""),
					text("relationship", "e.g. friend, colleague, family"),
				},
				Handler: t.handleAdd,
			},
			{
				Name:        "edit_contact",
				Description: "Edit an existing contact; empty fields are left unchanged",
				Params: []tools.Param{
					{Name: "name", Type: tools.TypeText, Required: true, Description: "current name"},
					text("new_name", ""),
					text("new_email", ""),
					text("new_phone", ""),
					text("new_relationship", ""),
				},
				Handler: t.handleEdit,
			},
			{
				Name:        "delete_contact",
				Description: "Delete a contact by name",
				Params:      []tools.Param{{Name: "name", Type: tools.TypeText, Required: true}},
				Handler:     t.handleDelete,
			},
		},
	}
}

func (t *Tools) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query := tools.String(args, "query")
	matches, err := t.store.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"query":   query,
		"matches": nonNil(matches),
		"count":   len(matches),
	})
}

func (t *Tools) handleList(ctx context.Context, _ map[string]any) (string, error) {
	all, err := t.store.List(ctx)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{"status": "success", "contacts": nonNil(all), "count": len(all)})
}

func (t *Tools) handleAdd(ctx context.Context, args map[string]any) (string, error) {
	c := &Contact{
		Name:         tools.String(args, "name"),
		Email:        tools.String(args, "email"),
		Phone:        tools.String(args, "phone"),
		Relationship: tools.String(args, "relationship"),
	}
	if err := t.store.Add(ctx, c); err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Contact '%s' added successfully", c.Name),
		"contact": c,
	})
}

func (t *Tools) handleEdit(ctx context.Context, args map[string]any) (string, error) {
	name := tools.String(args, "name")
	c, err := t.store.Edit(ctx, name, Patch{
		Name:         tools.String(args, "new_name"),
		Email:        tools.String(args, "new_email"),
		Phone:        tools.String(args, "new_phone"),
		Relationship: tools.String(args, "new_relationship"),
	})
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status":          "success",
		"message":         fmt.Sprintf("Contact '%s' updated successfully", name),
		"updated_contact": c,
	})
}

func (t *Tools) handleDelete(ctx context.Context, args map[string]any) (string, error) {
	name := tools.String(args, "name")
	if err := t.store.Delete(ctx, name); err != nil {
		return "", err
	}
	remaining, err := t.store.Count(ctx)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"status":             "success",
		"message":            fmt.Sprintf("Contact '%s' deleted successfully", name),
		"remaining_contacts": remaining,
	})
}

func nonNil(c []*Contact) []*Contact {
	if c == nil {
		return []*Contact{}
	}
	return c
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
