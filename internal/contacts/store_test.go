package contacts

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	s, err := New(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddFindDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ann := &Contact{Name: "Ann Lee", Email: "ann@example.com", Relationship: "colleague"}
	if err := s.Add(ctx, ann); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ann.ID.String() == "" || ann.CreatedAt.IsZero() {
		t.Errorf("ID and timestamps not assigned: %+v", ann)
	}

	got, err := s.FindByName(ctx, "ann lee")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if got.Email != "ann@example.com" {
		t.Errorf("Email = %q", got.Email)
	}

	if err := s.Add(ctx, &Contact{Name: "ANN LEE"}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate add err = %v, want ErrExists", err)
	}

	if err := s.Delete(ctx, "Ann Lee"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindByName(ctx, "Ann Lee"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "Ann Lee"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	// The name is free again after a soft delete.
	if err := s.Add(ctx, &Contact{Name: "Ann Lee"}); err != nil {
		t.Errorf("re-add after delete: %v", err)
	}
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, c := range []*Contact{{Name: "Bob", Phone: "555-0100"}, {Name: "Cat"}} {
		if err := s.Add(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	c, err := s.Edit(ctx, "bob", Patch{Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if c.Email != "bob@example.com" || c.Phone != "555-0100" {
		t.Errorf("edit result = %+v", c)
	}

	if _, err := s.Edit(ctx, "Bob", Patch{Name: "cat"}); !errors.Is(err, ErrExists) {
		t.Errorf("rename onto existing err = %v", err)
	}
	if _, err := s.Edit(ctx, "nobody", Patch{Phone: "1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("edit missing err = %v", err)
	}
}

func TestSearchAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, c := range []*Contact{
		{Name: "Ann", Email: "ann@example.com", Relationship: "family"},
		{Name: "Bob", Phone: "555-0199", Relationship: "colleague"},
		{Name: "Cara", Email: "cara@work.example", Relationship: "Colleague"},
	} {
		if err := s.Add(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  string
	}{
		{"colleague", "Bob,Cara"},
		{"0199", "Bob"},
		{"EXAMPLE.COM", "Ann"},
		{"zzz", ""},
	}
	for _, tt := range tests {
		got, err := s.Search(ctx, tt.query)
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, c := range got {
			names = append(names, c.Name)
		}
		if strings.Join(names, ",") != tt.want {
			t.Errorf("Search(%q) = %v, want %s", tt.query, names, tt.want)
		}
	}

	name, found, err := s.LookupEmail(ctx, "Cara@Work.Example")
	if err != nil || !found || name != "Cara" {
		t.Errorf("LookupEmail = %q, %v, %v", name, found, err)
	}
	if _, found, _ := s.LookupEmail(ctx, "nobody@example.com"); found {
		t.Error("unknown address reported found")
	}
}

func TestVCFRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	if err := src.Add(ctx, &Contact{Name: "Ann Lee", Email: "ann@example.com", Phone: "555-0100", Relationship: "friend"}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.ExportVCF(ctx, &buf); err != nil {
		t.Fatalf("ExportVCF: %v", err)
	}
	if !strings.Contains(buf.String(), "FN:Ann Lee") {
		t.Errorf("export missing FN:\n%s", buf.String())
	}

	dst := newTestStore(t)
	added, skipped, err := dst.ImportVCF(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ImportVCF: %v", err)
	}
	if added != 1 || skipped != 0 {
		t.Errorf("added=%d skipped=%d", added, skipped)
	}
	got, err := dst.FindByName(ctx, "Ann Lee")
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "ann@example.com" || got.Phone != "555-0100" || got.Relationship != "friend" {
		t.Errorf("imported = %+v", got)
	}

	// Importing again skips existing names.
	added, skipped, _ = dst.ImportVCF(ctx, bytes.NewReader(buf.Bytes()))
	if added != 0 || skipped != 1 {
		t.Errorf("re-import added=%d skipped=%d", added, skipped)
	}
}

func TestImportVCFNameFallback(t *testing.T) {
	s := newTestStore(t)
	card := "BEGIN:VCARD\r\nVERSION:3.0\r\nN:Lee;Ann;;;\r\nEMAIL:ann@example.com\r\nCATEGORIES:family\r\nEND:VCARD\r\n"
	added, _, err := s.ImportVCF(context.Background(), strings.NewReader(card))
	if err != nil || added != 1 {
		t.Fatalf("added=%d err=%v", added, err)
	}
	c, err := s.FindByName(context.Background(), "Ann Lee")
	if err != nil {
		t.Fatal(err)
	}
	if c.Relationship != "family" {
		t.Errorf("Relationship = %q", c.Relationship)
	}
}
