package engine

import "log/slog"

// DefaultProgressEvery is the record cadence of sync progress reports.
const DefaultProgressEvery = 100

// Progress is one sync progress report.
type Progress struct {
	Strategy Strategy
	Done     int
	Total    int
}

// ProgressFunc receives progress reports. It is called synchronously from the
// sync loop and must not block.
type ProgressFunc func(Progress)

// progressCounter fires on every Nth record and on the final record.
type progressCounter struct {
	strategy Strategy
	total    int
	every    int
	last     int
	fn       ProgressFunc
	logger   *slog.Logger
}

func newProgressCounter(strategy Strategy, total, every int, fn ProgressFunc, logger *slog.Logger) *progressCounter {
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &progressCounter{strategy: strategy, total: total, every: every, fn: fn, logger: logger}
}

// advance records that done records are finished and reports when a
// cadence boundary was crossed.
func (p *progressCounter) advance(done int) {
	crossed := done/p.every > p.last/p.every
	p.last = done
	if !crossed && done != p.total {
		return
	}
	p.logger.Debug("sync progress", "strategy", p.strategy.String(), "done", done, "total", p.total)
	if p.fn != nil {
		p.fn(Progress{Strategy: p.strategy, Done: done, Total: p.total})
	}
}
