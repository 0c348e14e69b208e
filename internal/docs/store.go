package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = errors.New("document not found")

const ext = ".html"

// maxDocumentSize bounds how much of a document file is read.
const maxDocumentSize = 4 << 20

// Entry describes a stored document file.
type Entry struct {
	ID       string
	Modified time.Time
}

// Store reads and writes document files.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error

	// Link returns a URL a person can open to view the document.
	Link(id string) string
}

// DAVStore keeps documents in a WebDAV collection.
type DAVStore struct {
	client *webdav.Client
	base   *url.URL
	root   string
}

// NewDAVStore creates a store over the collection at cfg.URL.
func NewDAVStore(cfg Config, httpClient *http.Client) (*DAVStore, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse docs url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	root := base.Path
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	endpoint := *base
	endpoint.Path = "/"

	client, err := webdav.NewClient(hc, endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("create webdav client: %w", err)
	}
	return &DAVStore{client: client, base: base, root: root}, nil
}

func (s *DAVStore) path(id string) string {
	return path.Join(s.root, id+ext)
}

// List implements Store.
func (s *DAVStore) List(ctx context.Context) ([]Entry, error) {
	infos, err := s.client.ReadDir(ctx, s.root, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	var out []Entry
	for _, fi := range infos {
		if fi.IsDir || !strings.HasSuffix(fi.Path, ext) {
			continue
		}
		out = append(out, Entry{
			ID:       strings.TrimSuffix(path.Base(fi.Path), ext),
			Modified: fi.ModTime,
		})
	}
	return out, nil
}

// Read implements Store.
func (s *DAVStore) Read(ctx context.Context, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	rc, err := s.client.Open(ctx, s.path(id))
	if err != nil {
		if webdav.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxDocumentSize))
}

// Write implements Store.
func (s *DAVStore) Write(ctx context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	wc, err := s.client.Create(ctx, s.path(id))
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		wc.Close()
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

// Link implements Store.
func (s *DAVStore) Link(id string) string {
	u := *s.base
	u.Path = s.path(id)
	return u.String()
}

// checkID rejects ids that would escape the collection.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

// sortNewest orders entries by modification time, newest first.
func sortNewest(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
}
