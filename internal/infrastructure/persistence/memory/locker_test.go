package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "session:1:passes")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "session:1:passes")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other keys are independent
	other, err := l.Lock(ctx, "session:2:passes")
	require.NoError(t, err)
	other()

	unlock()
	unlock() // idempotent

	again, err := l.Lock(ctx, "session:1:passes")
	require.NoError(t, err)
	again()
}

func TestLocker_DropsIdleKeys(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "session:1:passes")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "session:1:passes")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Len(), "abandoned waiter leaves the holder's slot")

	acquired := make(chan func())
	go func() {
		next, err := l.Lock(ctx, "session:1:passes")
		if err == nil {
			acquired <- next
		}
	}()

	unlock()
	next := <-acquired
	assert.Equal(t, 1, l.Len())

	next()
	assert.Equal(t, 0, l.Len())
}

func TestCodeIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewCodeIndex()

	_, ok, err := idx.Lookup(ctx, "AA-BCDEF")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Put(ctx, "AA-BCDEF", "g1"))
	id, ok, err := idx.Lookup(ctx, "AA-BCDEF")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g1", id.String())

	require.NoError(t, idx.Remove(ctx, "AA-BCDEF"))
	_, ok, _ = idx.Lookup(ctx, "AA-BCDEF")
	assert.False(t, ok)
}
