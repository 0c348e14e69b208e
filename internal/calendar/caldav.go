package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// ErrNotFound is returned when an event id matches nothing.
var ErrNotFound = errors.New("event not found")

// Backend stores events.
type Backend interface {
	Events(ctx context.Context, start, end time.Time) ([]Event, error)
	Put(ctx context.Context, e Event) error
	Get(ctx context.Context, id string) (Event, error)
	Delete(ctx context.Context, id string) error
}

// CalDAV is a Backend over one CalDAV calendar. The calendar path is
// discovered on first use.
type CalDAV struct {
	client  *caldav.Client
	want    string
	loc     *time.Location
	logger  *slog.Logger
	nowFunc func() time.Time

	mu   sync.Mutex
	path string
}

// NewCalDAV creates a backend for cfg. Floating times are read in loc.
func NewCalDAV(cfg Config, httpClient *http.Client, loc *time.Location, logger *slog.Logger) (*CalDAV, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	client, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalDAV{
		client:  client,
		want:    cfg.Calendar,
		loc:     loc,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// calendarPath resolves and caches the target calendar.
func (c *CalDAV) calendarPath(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return c.path, nil
	}

	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("list calendars: %w", err)
	}

	for _, cal := range cals {
		if c.want != "" {
			if strings.EqualFold(cal.Name, c.want) || strings.TrimSuffix(cal.Path, "/") == strings.TrimSuffix(c.want, "/") {
				c.path = cal.Path
				break
			}
			continue
		}
		if supportsEvents(cal) {
			c.path = cal.Path
			break
		}
	}
	if c.path == "" {
		return "", fmt.Errorf("no calendar matching %q under %s", c.want, home)
	}
	c.logger.Info("calendar resolved", "path", c.path)
	return c.path, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}

func (c *CalDAV) objectPath(base, id string) string {
	return path.Join(base, id+".ics")
}

// Events implements Backend.
func (c *CalDAV) Events(ctx context.Context, start, end time.Time) ([]Event, error) {
	base, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Props: []string{ical.PropVersion},
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: start.UTC(), End: end.UTC()}},
		},
	}
	objs, err := c.client.QueryCalendar(ctx, base, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var out []Event
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		evs, err := fromCalendar(obj.Data, c.loc)
		if err != nil {
			c.logger.Warn("skipping unreadable calendar object", "path", obj.Path, "error", err)
			continue
		}
		out = append(out, evs...)
	}
	return out, nil
}

// Put implements Backend.
func (c *CalDAV) Put(ctx context.Context, e Event) error {
	base, err := c.calendarPath(ctx)
	if err != nil {
		return err
	}
	if _, err := c.client.PutCalendarObject(ctx, c.objectPath(base, e.ID), toCalendar(e, c.nowFunc())); err != nil {
		return fmt.Errorf("put event %s: %w", e.ID, err)
	}
	return nil
}

// Get implements Backend.
func (c *CalDAV) Get(ctx context.Context, id string) (Event, error) {
	base, err := c.calendarPath(ctx)
	if err != nil {
		return Event{}, err
	}
	obj, err := c.client.GetCalendarObject(ctx, c.objectPath(base, id))
	if err != nil {
		if webdav.IsNotFound(err) {
			return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	evs, err := fromCalendar(obj.Data, c.loc)
	if err != nil {
		return Event{}, err
	}
	if len(evs) == 0 {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return evs[0], nil
}

// Delete implements Backend.
func (c *CalDAV) Delete(ctx context.Context, id string) error {
	base, err := c.calendarPath(ctx)
	if err != nil {
		return err
	}
	if err := c.client.RemoveAll(ctx, c.objectPath(base, id)); err != nil {
		if webdav.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// Ping verifies the server answers and the calendar can be found.
func (c *CalDAV) Ping(ctx context.Context) error {
	_, err := c.calendarPath(ctx)
	return err
}
