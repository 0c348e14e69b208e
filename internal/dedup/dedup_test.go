package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	// md5("hello") = 5d41402abc4b2a76b9719d911017c592
	assert.Equal(t, "1700000000.000100_C1_U1_5d41402a", Key("1700000000.000100", "C1", "U1", "hello"))
	assert.NotEqual(t, Key("1", "C", "U", "a"), Key("1", "C", "U", "b"))
}

func TestCheckAndRemember(t *testing.T) {
	s := New(10, nil)

	assert.False(t, s.Seen("a"))
	assert.False(t, s.CheckAndRemember("a"))
	assert.True(t, s.Seen("a"))
	assert.True(t, s.CheckAndRemember("a"))
	assert.Equal(t, 1, s.Len())
}

func TestRememberIsIdempotent(t *testing.T) {
	s := New(10, nil)
	s.Remember("a")
	s.Remember("a")
	assert.Equal(t, 1, s.Len())
}

func TestEvictsOldestHalf(t *testing.T) {
	s := New(4, nil)
	for i := 0; i < 4; i++ {
		s.Remember(fmt.Sprint(i))
	}
	require.Equal(t, 4, s.Len())

	// The fifth key pushes past capacity; keys 0 and 1 go.
	s.Remember("4")

	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Seen("0"))
	assert.False(t, s.Seen("1"))
	for _, k := range []string{"2", "3", "4"} {
		assert.True(t, s.Seen(k), k)
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	s := New(1000, nil)
	for i := 0; i < 5000; i++ {
		s.Remember(fmt.Sprint(i))
		require.LessOrEqual(t, s.Len(), 1000)
	}
	assert.True(t, s.Seen("4999"))
}

func TestConcurrentCheckAndRememberSingleWinner(t *testing.T) {
	s := New(100, nil)
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.CheckAndRemember("same") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}
