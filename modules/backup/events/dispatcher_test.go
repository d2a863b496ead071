package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(4, 0)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		assert.True(t, d.Post(func() { got = append(got, i) }))
	}
	d.Close()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_SlowObserverDoesNotBlockProducer(t *testing.T) {
	d := NewDispatcher(1, 20*time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	d.Post(func() {
		close(started)
		<-release
	})
	<-started

	start := time.Now()
	// fills the single slot, then overflows
	assert.True(t, d.Offer(func() {}))
	assert.False(t, d.Offer(func() {}))
	assert.False(t, d.Post(func() {}))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(2), d.Dropped())

	close(release)
	d.Close()
}

func TestDispatcher_SurvivesPanickingHandler(t *testing.T) {
	d := NewDispatcher(2, 0)

	called := false
	d.Post(func() { panic("observer bug") })
	d.Post(func() { called = true })
	d.Close()

	assert.True(t, called)
}
