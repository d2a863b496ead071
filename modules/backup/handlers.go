package backup

// Handlers are optional observer callbacks. They are invoked on a dispatcher
// goroutine, never on the job worker. Nil callbacks are no-ops.
type Handlers struct {
	OnStart        func(s Snapshot)
	OnLog          func(msg string)
	OnProgress     func(percent int)
	OnFileProgress func(done, total int)
	OnThroughput   func(bps float64)
	OnComplete     func(out Outcome)
}

func (h Handlers) withDefaults() Handlers {
	if h.OnStart == nil {
		h.OnStart = func(Snapshot) {}
	}
	if h.OnLog == nil {
		h.OnLog = func(string) {}
	}
	if h.OnProgress == nil {
		h.OnProgress = func(int) {}
	}
	if h.OnFileProgress == nil {
		h.OnFileProgress = func(int, int) {}
	}
	if h.OnThroughput == nil {
		h.OnThroughput = func(float64) {}
	}
	if h.OnComplete == nil {
		h.OnComplete = func(Outcome) {}
	}
	return h
}

// Multi combines handlers, each callback is called in order of hs
func Multi(hs ...Handlers) Handlers {
	all := make([]Handlers, 0, len(hs))
	for _, h := range hs {
		all = append(all, h.withDefaults())
	}

	return Handlers{
		OnStart: func(s Snapshot) {
			for _, h := range all {
				h.OnStart(s)
			}
		},
		OnLog: func(msg string) {
			for _, h := range all {
				h.OnLog(msg)
			}
		},
		OnProgress: func(p int) {
			for _, h := range all {
				h.OnProgress(p)
			}
		},
		OnFileProgress: func(done, total int) {
			for _, h := range all {
				h.OnFileProgress(done, total)
			}
		},
		OnThroughput: func(bps float64) {
			for _, h := range all {
				h.OnThroughput(bps)
			}
		},
		OnComplete: func(out Outcome) {
			for _, h := range all {
				h.OnComplete(out)
			}
		},
	}
}
