package calendar

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, e Event) Event {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ical.NewEncoder(&buf).Encode(toCalendar(e, time.Now())))

	cal, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	events, err := fromCalendar(cal, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestEventRoundTrip(t *testing.T) {
	start := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	in := Event{
		ID:          "evt-1",
		Summary:     "Dentist",
		Start:       start,
		End:         start.Add(time.Hour),
		Location:    "Main St",
		Description: "bring forms",
		Attendees:   []string{"ana@example.com", "bo@example.com"},
	}

	out := roundTrip(t, in)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Summary, out.Summary)
	assert.True(t, in.Start.Equal(out.Start))
	assert.True(t, in.End.Equal(out.End))
	assert.False(t, out.AllDay)
	assert.Equal(t, in.Location, out.Location)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.Attendees, out.Attendees)
}

func TestAllDayEventRoundTrip(t *testing.T) {
	day := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	out := roundTrip(t, Event{ID: "xmas", Summary: "Holiday", Start: day, End: day.AddDate(0, 0, 1), AllDay: true})

	assert.True(t, out.AllDay)
	assert.Equal(t, "2026-12-25", out.Start.Format(dateLayout))
}

func TestFromEventRequiresUID(t *testing.T) {
	ev := ical.NewEvent()
	ev.Props.SetDateTime(ical.PropDateTimeStart, time.Now())
	_, err := fromEvent(*ev, time.UTC)
	assert.Error(t, err)
}
