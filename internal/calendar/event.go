// Package calendar implements the calendar capability group over
// CalDAV. Events are read and written as iCalendar VEVENTs.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// Event is one calendar entry. ID is the iCalendar UID.
type Event struct {
	ID          string
	Summary     string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Location    string
	Description string
	Attendees   []string
}

const prodID = "-//nugget//aide//EN"

// newUID returns a fresh event UID.
func newUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// toCalendar wraps e in a VCALENDAR.
func toCalendar(e Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, e.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if e.AllDay {
		ev.Props.SetDate(ical.PropDateTimeStart, e.Start)
		ev.Props.SetDate(ical.PropDateTimeEnd, e.End)
	} else {
		ev.Props.SetDateTime(ical.PropDateTimeStart, e.Start)
		ev.Props.SetDateTime(ical.PropDateTimeEnd, e.End)
	}
	ev.Props.SetText(ical.PropSummary, e.Summary)
	if e.Location != "" {
		ev.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Description != "" {
		ev.Props.SetText(ical.PropDescription, e.Description)
	}
	for _, a := range e.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + a
		ev.Props.Add(p)
	}

	cal.Children = append(cal.Children, ev.Component)
	return cal
}

// fromCalendar returns the VEVENTs of cal. Floating times are read in
// loc.
func fromCalendar(cal *ical.Calendar, loc *time.Location) ([]Event, error) {
	var out []Event
	for _, ev := range cal.Events() {
		e, err := fromEvent(ev, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func fromEvent(ev ical.Event, loc *time.Location) (Event, error) {
	var e Event
	uid := ev.Props.Get(ical.PropUID)
	if uid == nil {
		return e, fmt.Errorf("event without UID")
	}
	e.ID = uid.Value

	var err error
	if e.Start, err = ev.DateTimeStart(loc); err != nil {
		return e, fmt.Errorf("event %s: start: %w", e.ID, err)
	}
	if e.End, err = ev.DateTimeEnd(loc); err != nil {
		return e, fmt.Errorf("event %s: end: %w", e.ID, err)
	}
	if p := ev.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		e.AllDay = true
	}
	if e.End.IsZero() {
		e.End = e.Start
	}

	e.Summary, _ = ev.Props.Text(ical.PropSummary)
	e.Location, _ = ev.Props.Text(ical.PropLocation)
	e.Description, _ = ev.Props.Text(ical.PropDescription)
	for _, p := range ev.Props.Values(ical.PropAttendee) {
		addr := p.Value
		if i := strings.Index(strings.ToLower(addr), "mailto:"); i >= 0 {
			addr = addr[i+len("mailto:"):]
		}
		e.Attendees = append(e.Attendees, addr)
	}
	return e, nil
}
