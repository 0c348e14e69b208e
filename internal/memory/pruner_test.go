package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrunerRunOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := base.Add(40 * 24 * time.Hour)
	require.NoError(t, s.Append(ctx, "ann",
		msg(RoleUser, "ancient", base),
		msg(RoleUser, "recent", now.Add(-24*time.Hour)),
	))

	p, err := NewPruner(s, 30*24*time.Hour, "@daily", nil)
	require.NoError(t, err)
	p.nowFunc = func() time.Time { return now }

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Recent(ctx, "ann", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].Content)
}

func TestPrunerRejectsBadSchedule(t *testing.T) {
	_, err := NewPruner(NewStore(), time.Hour, "every tuesday", nil)
	assert.Error(t, err)
}

func TestPrunerStartStop(t *testing.T) {
	p, err := NewPruner(NewStore(), time.Hour, "*/1 * * * * *", nil)
	require.NoError(t, err)
	p.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
}
