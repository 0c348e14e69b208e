package calendar

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/aide/internal/tools"
)

type fakeBackend struct {
	mu      sync.Mutex
	events  map[string]Event
	queries [][2]time.Time
}

func newFakeBackend(events ...Event) *fakeBackend {
	b := &fakeBackend{events: make(map[string]Event)}
	for _, e := range events {
		b.events[e.ID] = e
	}
	return b
}

func (b *fakeBackend) Events(_ context.Context, start, end time.Time) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, [2]time.Time{start, end})
	var out []Event
	for _, e := range b.events {
		if e.Start.Before(end) && e.End.After(start) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *fakeBackend) Put(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[e.ID] = e
	return nil
}

func (b *fakeBackend) Get(_ context.Context, id string) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (b *fakeBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.events[id]; !ok {
		return ErrNotFound
	}
	delete(b.events, id)
	return nil
}

var testNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newTestTools(b Backend) *Tools {
	ct := NewTools(b, time.UTC, nil)
	ct.nowFunc = func() time.Time { return testNow }
	return ct
}

// call runs an operation the way the engine does: arguments are bound
// against the schema first.
func call(t *testing.T, ct *Tools, name string, args map[string]any) (string, error) {
	t.Helper()
	for _, tool := range ct.Group().Tools {
		if tool.Name == name {
			bound, err := tools.Bind(tool, args)
			require.NoError(t, err)
			return tool.Handler(context.Background(), bound)
		}
	}
	t.Fatalf("no tool %s", name)
	return "", nil
}

func TestParseRange(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		in         string
		start, end time.Time
	}{
		{"today", day(17), day(18)},
		{"", day(17), day(18)},
		{"Tomorrow", day(18), day(19)},
		{"week", day(17), day(24)},
		{"2026-10-20", day(20), day(21)},
		{"next tuesday", day(17), day(18)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end := parseRange(tt.in, testNow)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestParseDateTime(t *testing.T) {
	got, allDay, err := parseDateTime("2026-10-17 14:00:00", time.UTC)
	require.NoError(t, err)
	assert.False(t, allDay)
	assert.Equal(t, time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC), got)

	_, allDay, err = parseDateTime("2026-10-17", time.UTC)
	require.NoError(t, err)
	assert.True(t, allDay)

	_, _, err = parseDateTime("tomorrow at 3", time.UTC)
	assert.Error(t, err)
}

func TestGetEventsEmpty(t *testing.T) {
	b := newFakeBackend()
	out, err := call(t, newTestTools(b), "get_calendar_events", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success","events":[],"message":"No events found for today","count":0}`, out)

	require.Len(t, b.queries, 1)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), b.queries[0][0])
}

func TestGetEventsSortedByStart(t *testing.T) {
	b := newFakeBackend(
		Event{ID: "b", Summary: "Lunch", Start: testNow.Add(3 * time.Hour), End: testNow.Add(4 * time.Hour)},
		Event{ID: "a", Summary: "Standup", Start: testNow.Add(time.Hour), End: testNow.Add(90 * time.Minute)},
	)
	out, err := call(t, newTestTools(b), "get_calendar_events", map[string]any{"date_range": "today"})
	require.NoError(t, err)

	var res rangeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "today", res.DateRange)
	assert.Equal(t, "Standup", res.Events[0].Summary)
	assert.Equal(t, "Lunch", res.Events[1].Summary)
}

func TestCreateEvent(t *testing.T) {
	b := newFakeBackend()
	out, err := call(t, newTestTools(b), "create_calendar_event", map[string]any{
		"summary":        "Review",
		"start_datetime": "2026-10-18 10:00:00",
		"end_datetime":   "2026-10-18 11:00:00",
		"attendees":      "ana@example.com, bo@example.com",
	})
	require.NoError(t, err)

	var res createResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "success", res.Status)
	require.Contains(t, b.events, res.EventID)
	assert.Equal(t, []string{"ana@example.com", "bo@example.com"}, b.events[res.EventID].Attendees)
}

func TestCreateEventRejectsBackwardsRange(t *testing.T) {
	_, err := call(t, newTestTools(newFakeBackend()), "create_calendar_event", map[string]any{
		"summary":        "Oops",
		"start_datetime": "2026-10-18 11:00:00",
		"end_datetime":   "2026-10-18 10:00:00",
	})
	assert.Error(t, err)
}

func TestSearchEvents(t *testing.T) {
	b := newFakeBackend(
		Event{ID: "1", Summary: "Dentist", Start: testNow.AddDate(0, 0, 3), End: testNow.AddDate(0, 0, 3).Add(time.Hour)},
		Event{ID: "2", Summary: "Gym", Location: "dentist's building", Start: testNow.AddDate(0, 0, 1), End: testNow.AddDate(0, 0, 1).Add(time.Hour)},
		Event{ID: "3", Summary: "Dinner", Start: testNow.AddDate(0, 0, 2), End: testNow.AddDate(0, 0, 2).Add(time.Hour)},
	)
	out, err := call(t, newTestTools(b), "search_calendar_events", map[string]any{"query": "DENTIST"})
	require.NoError(t, err)

	var res searchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "2", res.Events[0].ID)
	assert.Equal(t, "1", res.Events[1].ID)
}

func TestUpdateEventKeepsEmptyFields(t *testing.T) {
	start := testNow.Add(time.Hour)
	b := newFakeBackend(Event{ID: "x", Summary: "Call", Location: "Zoom", Start: start, End: start.Add(time.Hour)})

	_, err := call(t, newTestTools(b), "update_calendar_event", map[string]any{
		"event_id": "x",
		"summary":  "Call with Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "Call with Ana", b.events["x"].Summary)
	assert.Equal(t, "Zoom", b.events["x"].Location)
	assert.Equal(t, start, b.events["x"].Start)
}

func TestDeleteEvent(t *testing.T) {
	b := newFakeBackend(Event{ID: "x", Start: testNow, End: testNow})
	ct := newTestTools(b)

	out, err := call(t, ct, "delete_calendar_event", map[string]any{"event_id": "x"})
	require.NoError(t, err)
	assert.Contains(t, out, `"event_id":"x"`)
	assert.Empty(t, b.events)

	_, err = call(t, ct, "delete_calendar_event", map[string]any{"event_id": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{URL: "https://dav.example.com/"}.Validate())
	assert.Error(t, Config{URL: "ftp://dav.example.com/"}.Validate())
}
