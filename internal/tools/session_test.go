package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStartsWithMetaOnly(t *testing.T) {
	s := NewSession(testRegistry(t))

	assert.Empty(t, s.Loaded())
	names := toolNames(s.Available())
	assert.Equal(t, []string{"get_calendar_tools", "get_mail_tools"}, names)

	_, ok := s.Lookup("get_calendar_events")
	assert.False(t, ok)
}

func TestSessionLoadIsIdempotent(t *testing.T) {
	s := NewSession(testRegistry(t))

	first, err := s.Load("calendar")
	require.NoError(t, err)
	assert.False(t, first.AlreadyLoaded)
	assert.Contains(t, first.Message(), "Loaded calendar tools successfully")
	afterFirst := toolNames(s.Available())
	sigsFirst := s.Signatures()

	second, err := s.Load("calendar")
	require.NoError(t, err)
	assert.True(t, second.AlreadyLoaded)
	assert.Equal(t, "calendar tools already loaded", second.Message())

	assert.Equal(t, afterFirst, toolNames(s.Available()))
	assert.Equal(t, sigsFirst, s.Signatures())
	assert.Equal(t, []string{"calendar"}, s.Loaded())
}

func TestSessionLoadByAlias(t *testing.T) {
	s := NewSession(testRegistry(t))

	lr, err := s.Load("gmail")
	require.NoError(t, err)
	assert.Equal(t, "mail", lr.Category)
	assert.True(t, s.IsLoaded("mail"))

	again, err := s.Load("mail")
	require.NoError(t, err)
	assert.True(t, again.AlreadyLoaded)
}

func TestSessionLoadUnknownCategory(t *testing.T) {
	s := NewSession(testRegistry(t))

	_, err := s.Load("fax")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))
	assert.Empty(t, s.Loaded())
}

func TestSessionsAreIndependent(t *testing.T) {
	r := testRegistry(t)
	a := NewSession(r)
	b := NewSession(r)

	_, err := a.Load("calendar")
	require.NoError(t, err)

	assert.True(t, a.IsLoaded("calendar"))
	assert.False(t, b.IsLoaded("calendar"))
	_, ok := b.Lookup("get_calendar_events")
	assert.False(t, ok)
}

func TestSessionSignaturesGrow(t *testing.T) {
	s := NewSession(testRegistry(t))
	before := s.Signatures()
	assert.NotContains(t, before, "get_calendar_events")

	_, err := s.Load("calendar")
	require.NoError(t, err)
	after := s.Signatures()
	assert.Contains(t, after, "get_calendar_events")
	assert.Contains(t, after, "get_mail_tools")
}

func toolNames(ts []*Tool) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}
