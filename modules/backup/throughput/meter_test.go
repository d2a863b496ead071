package throughput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMeter_CumulativeDeltas(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	m := New(Params{Now: clk.now})

	var increments []int64
	prev := int64(0)
	for _, s := range [][2]int64{{100, 500}, {300, 500}, {50, 900}} {
		m.Cumulative(s[0], s[1])
		increments = append(increments, m.Total()-prev)
		prev = m.Total()
	}

	assert.Equal(t, []int64{100, 200, 50}, increments)
	assert.Equal(t, int64(350), m.Total())
	assert.Equal(t, int64(300), m.folded)
	assert.Equal(t, int64(50), m.baseline)
}

func TestMeter_BeginFileFoldsBaseline(t *testing.T) {
	m := New(Params{Now: (&fakeClock{t: time.Unix(0, 0)}).now})

	m.BeginFile()
	m.Cumulative(100, 100)
	m.BeginFile()
	// next file is larger, so no negative delta would reveal the switch
	m.Cumulative(150, 400)
	m.Cumulative(400, 400)

	assert.Equal(t, int64(500), m.Total())
}

func TestMeter_ChunkReports(t *testing.T) {
	m := New(Params{Now: (&fakeClock{t: time.Unix(0, 0)}).now})

	m.Chunk(10)
	m.Chunk(0)
	m.Chunk(-5)
	m.Chunk(32)

	assert.Equal(t, int64(42), m.Total())
}

func TestMeter_SamplesAccumulateBetweenIntervals(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}

	var samples []float64
	m := New(Params{Now: clk.now, OnSample: func(bps float64) { samples = append(samples, bps) }})

	clk.advance(100 * time.Millisecond)
	m.Chunk(100)
	clk.advance(100 * time.Millisecond)
	m.Chunk(100)
	assert.Empty(t, samples)

	// 500 bytes over 0.5s since the start
	clk.advance(300 * time.Millisecond)
	m.Chunk(300)
	if assert.Len(t, samples, 1) {
		assert.InDelta(t, 1000.0, samples[0], 0.001)
	}

	clk.advance(250 * time.Millisecond)
	m.Chunk(50)
	assert.Len(t, samples, 1)

	clk.advance(750 * time.Millisecond)
	m.Chunk(950)
	if assert.Len(t, samples, 2) {
		assert.InDelta(t, 1000.0, samples[1], 0.001)
	}
	assert.InDelta(t, 1000.0, m.Speed(), 0.001)
	assert.Equal(t, int64(1500), m.Total())
}

func TestMeter_FlushEmitsPending(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}

	var samples []float64
	m := New(Params{Now: clk.now, OnSample: func(bps float64) { samples = append(samples, bps) }})

	m.Flush()
	assert.Empty(t, samples)

	clk.advance(100 * time.Millisecond)
	m.Chunk(50)
	assert.Empty(t, samples)

	m.Flush()
	if assert.Len(t, samples, 1) {
		assert.InDelta(t, 500.0, samples[0], 0.001)
	}

	m.Flush()
	assert.Len(t, samples, 1)
}
