package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nugget/aide/internal/tools"
)

// Search window used when search_calendar_events is given no dates.
const (
	searchBack  = 30 * 24 * time.Hour
	searchAhead = 365 * 24 * time.Hour
	maxEvents   = 50
)

// Tools backs the calendar capability group.
type Tools struct {
	backend Backend
	loc     *time.Location
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTools creates the calendar operations. Dates without a zone are
// interpreted in loc.
func NewTools(backend Backend, loc *time.Location, logger *slog.Logger) *Tools {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{backend: backend, loc: loc, logger: logger, nowFunc: time.Now}
}

// Group returns the calendar capability group.
func (t *Tools) Group() *tools.Group {
	opt := func(name, desc string) tools.Param {
		return tools.Param{Name: name, Type: tools.TypeText, Default: "", Description: desc}
	}
	return &tools.Group{
		Category:    "calendar",
		Description: "read, create, update and delete calendar events",
		Tools: []*tools.Tool{
			{
				Name:        "get_calendar_events",
				Description: "Get calendar events for a date range",
				Params: []tools.Param{{
					Name: "date_range", Type: tools.TypeText, Default: "today",
					Description: `"today", "tomorrow", "week" (next 7 days) or a date YYYY-MM-DD`,
				}},
				Handler: t.handleGet,
			},
			{
				Name:        "create_calendar_event",
				Description: "Create a calendar event",
				Params: []tools.Param{
					{Name: "summary", Type: tools.TypeText, Required: true, Description: "event title"},
					{Name: "start_datetime", Type: tools.TypeText, Required: true, Description: "YYYY-MM-DD HH:MM:SS"},
					{Name: "end_datetime", Type: tools.TypeText, Required: true, Description: "YYYY-MM-DD HH:MM:SS"},
					opt("location", ""),
					opt("description", ""),
					opt("attendees", "comma-separated email addresses"),
				},
				Handler: t.handleCreate,
			},
			{
				Name:        "search_calendar_events",
				Description: "Search events by text, optionally within dates",
				Params: []tools.Param{
					opt("query", "text matched against title, location and description"),
					opt("start_date", "YYYY-MM-DD"),
					opt("end_date", "YYYY-MM-DD, inclusive"),
				},
				Handler: t.handleSearch,
			},
			{
				Name:        "update_calendar_event",
				Description: "Update an event; empty fields are left unchanged",
				Params: []tools.Param{
					{Name: "event_id", Type: tools.TypeText, Required: true},
					opt("summary", ""),
					opt("start_datetime", "YYYY-MM-DD HH:MM:SS"),
					opt("end_datetime", "YYYY-MM-DD HH:MM:SS"),
					opt("location", ""),
					opt("description", ""),
				},
				Handler: t.handleUpdate,
			},
			{
				Name:        "delete_calendar_event",
				Description: "Delete an event",
				Params:      []tools.Param{{Name: "event_id", Type: tools.TypeText, Required: true}},
				Handler:     t.handleDelete,
			},
		},
	}
}

// eventView is the JSON shape of an event returned to the model.
type eventView struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Attendees   []string `json:"attendees,omitempty"`
}

func (t *Tools) view(e Event) eventView {
	layout := time.RFC3339
	if e.AllDay {
		layout = dateLayout
	}
	summary := e.Summary
	if summary == "" {
		summary = "No title"
	}
	return eventView{
		ID:          e.ID,
		Summary:     summary,
		Start:       e.Start.In(t.loc).Format(layout),
		End:         e.End.In(t.loc).Format(layout),
		Location:    e.Location,
		Description: e.Description,
		Attendees:   e.Attendees,
	}
}

func (t *Tools) views(events []Event) []eventView {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, t.view(e))
	}
	return out
}

type emptyRangeResult struct {
	Status  string      `json:"status"`
	Events  []eventView `json:"events"`
	Message string      `json:"message"`
	Count   int         `json:"count"`
}

type rangeResult struct {
	Status    string      `json:"status"`
	Events    []eventView `json:"events"`
	Count     int         `json:"count"`
	DateRange string      `json:"date_range"`
}

func (t *Tools) handleGet(ctx context.Context, args map[string]any) (string, error) {
	dateRange := tools.String(args, "date_range")
	start, end := parseRange(dateRange, t.nowFunc().In(t.loc))

	events, err := t.backend.Events(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return jsonResult(emptyRangeResult{
			Status:  "success",
			Events:  []eventView{},
			Message: "No events found for " + dateRange,
			Count:   0,
		})
	}
	views := t.views(events)
	return jsonResult(rangeResult{Status: "success", Events: views, Count: len(views), DateRange: dateRange})
}

type createResult struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (t *Tools) handleCreate(ctx context.Context, args map[string]any) (string, error) {
	start, allDay, err := parseDateTime(tools.String(args, "start_datetime"), t.loc)
	if err != nil {
		return "", err
	}
	end, _, err := parseDateTime(tools.String(args, "end_datetime"), t.loc)
	if err != nil {
		return "", err
	}
	if end.Before(start) {
		return "", fmt.Errorf("end_datetime is before start_datetime")
	}

	e := Event{
		ID:          newUID(),
		Summary:     tools.String(args, "summary"),
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Location:    tools.String(args, "location"),
		Description: tools.String(args, "description"),
		Attendees:   splitList(tools.String(args, "attendees")),
	}
	if err := t.backend.Put(ctx, e); err != nil {
		return "", err
	}
	t.logger.Info("calendar event created", "id", e.ID, "summary", e.Summary)

	v := t.view(e)
	return jsonResult(createResult{Status: "success", EventID: e.ID, Summary: e.Summary, Start: v.Start, End: v.End})
}

type searchResult struct {
	Status string      `json:"status"`
	Events []eventView `json:"events"`
	Count  int         `json:"count"`
	Query  string      `json:"query"`
}

func (t *Tools) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	now := t.nowFunc().In(t.loc)
	start, end := now.Add(-searchBack), now.Add(searchAhead)
	if s := tools.String(args, "start_date"); s != "" {
		d, err := time.ParseInLocation(dateLayout, s, t.loc)
		if err != nil {
			return "", fmt.Errorf("invalid start_date %q: use YYYY-MM-DD", s)
		}
		start = d
	}
	if s := tools.String(args, "end_date"); s != "" {
		d, err := time.ParseInLocation(dateLayout, s, t.loc)
		if err != nil {
			return "", fmt.Errorf("invalid end_date %q: use YYYY-MM-DD", s)
		}
		end = d.AddDate(0, 0, 1)
	}

	events, err := t.backend.Events(ctx, start, end)
	if err != nil {
		return "", err
	}
	query := tools.String(args, "query")
	needle := strings.ToLower(strings.TrimSpace(query))
	var matched []Event
	for _, e := range events {
		hay := strings.ToLower(e.Summary + "\n" + e.Location + "\n" + e.Description)
		if needle == "" || strings.Contains(hay, needle) {
			matched = append(matched, e)
		}
	}
	views := t.views(matched)
	return jsonResult(searchResult{Status: "success", Events: views, Count: len(views), Query: query})
}

type changeResult struct {
	Status  string     `json:"status"`
	EventID string     `json:"event_id"`
	Event   *eventView `json:"event,omitempty"`
	Message string     `json:"message"`
}

func (t *Tools) handleUpdate(ctx context.Context, args map[string]any) (string, error) {
	id := tools.String(args, "event_id")
	e, err := t.backend.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if s := tools.String(args, "summary"); s != "" {
		e.Summary = s
	}
	if s := tools.String(args, "location"); s != "" {
		e.Location = s
	}
	if s := tools.String(args, "description"); s != "" {
		e.Description = s
	}
	if s := tools.String(args, "start_datetime"); s != "" {
		if e.Start, e.AllDay, err = parseDateTime(s, t.loc); err != nil {
			return "", err
		}
	}
	if s := tools.String(args, "end_datetime"); s != "" {
		if e.End, _, err = parseDateTime(s, t.loc); err != nil {
			return "", err
		}
	}
	if e.End.Before(e.Start) {
		return "", fmt.Errorf("end is before start")
	}

	if err := t.backend.Put(ctx, e); err != nil {
		return "", err
	}
	v := t.view(e)
	return jsonResult(changeResult{Status: "success", EventID: id, Event: &v, Message: "Event updated successfully"})
}

func (t *Tools) handleDelete(ctx context.Context, args map[string]any) (string, error) {
	id := tools.String(args, "event_id")
	if err := t.backend.Delete(ctx, id); err != nil {
		return "", err
	}
	return jsonResult(changeResult{Status: "success", EventID: id, Message: "Event deleted successfully"})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
