package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/birddigital/voicebridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct{ closed bool }

func (f *fakeEntry) Closed() bool { return f.closed }

func TestPutGetDelete(t *testing.T) {
	r := registry.New(nil)
	e := &fakeEntry{}
	r.Put("call-1", e)

	got, ok := r.Get("call-1")
	require.True(t, ok)
	assert.Same(t, e, got)

	r.Delete("call-1")
	_, ok = r.Get("call-1")
	assert.False(t, ok)
}

func TestLenCountsAcrossShards(t *testing.T) {
	r := registry.New(nil)
	for i := 0; i < 50; i++ {
		r.Put(string(rune('a'+i%26))+string(rune(i)), &fakeEntry{})
	}
	assert.Equal(t, 50, r.Len())
}

func TestStartSweepEvictsClosedEntries(t *testing.T) {
	r := registry.New(nil)
	live := &fakeEntry{closed: false}
	dead := &fakeEntry{closed: true}
	r.Put("live", live)
	r.Put("dead", dead)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := r.StartSweep(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		_, ok := r.Get("dead")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok := r.Get("live")
	assert.True(t, ok)
}
