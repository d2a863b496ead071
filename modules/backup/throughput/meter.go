package throughput

import "time"

const DefaultInterval = 500 * time.Millisecond

// Meter turns protocol byte reports into a session byte total and a
// periodically sampled speed. It is used from one goroutine only.
type Meter struct {
	interval time.Duration
	now      func() time.Time
	onSample func(bps float64)

	folded   int64 // bytes of files already finished
	chunked  int64
	baseline int64 // last cumulative value of the current file

	pending    int64
	lastSample time.Time
	speed      float64
}

type Params struct {
	Interval time.Duration
	Now      func() time.Time
	OnSample func(bps float64)
}

func New(p Params) *Meter {
	m := &Meter{
		interval: p.Interval,
		now:      p.Now,
		onSample: p.OnSample,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.onSample == nil {
		m.onSample = func(float64) {}
	}
	m.lastSample = m.now()
	return m
}

// Chunk accounts a directly reported increment
func (m *Meter) Chunk(n int64) {
	if n <= 0 {
		return
	}
	m.chunked += n
	m.add(n)
}

// Cumulative accounts a (soFar, total) report that restarts from zero for every file
func (m *Meter) Cumulative(soFar, _ int64) {
	inc := soFar - m.baseline
	if inc < 0 {
		// new file started
		m.folded += m.baseline
		m.baseline = soFar
		m.add(soFar)
		return
	}
	m.baseline = soFar
	m.add(inc)
}

// BeginFile folds the current file's cumulative count before a new file starts
func (m *Meter) BeginFile() {
	m.folded += m.baseline
	m.baseline = 0
}

// Total returns bytes moved in the session so far
func (m *Meter) Total() int64 {
	return m.chunked + m.folded + m.baseline
}

// Speed returns the last sampled speed in bytes per second
func (m *Meter) Speed() float64 {
	return m.speed
}

// Flush emits a sample for bytes accounted since the last one
func (m *Meter) Flush() {
	if m.pending == 0 {
		return
	}
	now := m.now()
	if elapsed := now.Sub(m.lastSample); elapsed > 0 {
		m.speed = float64(m.pending) / elapsed.Seconds()
	}
	m.pending = 0
	m.lastSample = now
	m.onSample(m.speed)
}

func (m *Meter) add(inc int64) {
	m.pending += inc

	now := m.now()
	elapsed := now.Sub(m.lastSample)
	if elapsed < m.interval {
		return
	}

	m.speed = float64(m.pending) / elapsed.Seconds()
	m.pending = 0
	m.lastSample = now
	m.onSample(m.speed)
}
