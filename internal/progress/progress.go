// Package progress derives percent complete, throughput and time remaining
// from the byte counts reported during a transfer.
package progress

import (
	"fmt"
	"math"
	"time"
)

// SampleInterval is the minimum time between two speed computations.
const SampleInterval = time.Second

// Snapshot is the derived state of a transfer at one point in time.
type Snapshot struct {
	Time    time.Time
	Title   string
	Bytes   int64
	Total   int64
	Speed   float64 // bytes per second
	Percent float64
	ETA     time.Duration
	HasETA  bool

	Visible   bool
	Active    bool
	Completed bool
	Failed    bool
	Err       error
}

// PercentText is the floored percentage, e.g. "40%".
func (s Snapshot) PercentText() string {
	return fmt.Sprintf("%d%%", int64(math.Floor(s.Percent)))
}

func (s Snapshot) TransferredText() string { return FormatSize(s.Bytes) }
func (s Snapshot) TotalText() string       { return FormatSize(s.Total) }
func (s Snapshot) SpeedText() string       { return FormatSize(int64(s.Speed)) + "/s" }

// RemainingText is the formatted ETA, or "--" while no speed is known.
func (s Snapshot) RemainingText() string {
	if !s.HasETA {
		return "--"
	}
	return FormatETA(s.ETA.Seconds())
}

// Renderer displays snapshots.
type Renderer interface {
	Render(Snapshot)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

type Option func(*Estimator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		e.now = now
	}
}

// Estimator tracks one transfer at a time. It is not safe for concurrent use.
type Estimator struct {
	now      func() time.Time
	renderer Renderer

	title string
	total int64

	lastSample time.Time
	lastBytes  int64
	speed      float64
	percent    float64
	current    int64
	visible    bool
}

func New(renderer Renderer, opts ...Option) *Estimator {
	if renderer == nil {
		renderer = RendererFunc(func(Snapshot) {})
	}
	e := &Estimator{
		now:      time.Now,
		renderer: renderer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTotal starts tracking a transfer of total bytes.
func (e *Estimator) SetTotal(total int64) {
	e.total = total
	e.lastSample = e.now()
	e.lastBytes = 0
	e.speed = 0
	e.percent = 0
	e.current = 0
}

// SetTitle names the transfer and makes the progress visible.
func (e *Estimator) SetTitle(title string) {
	e.title = title
	e.visible = true
	e.renderer.Render(e.snapshot(e.now()))
}

// Update records the number of bytes transferred so far and renders.
func (e *Estimator) Update(current int64) Snapshot {
	now := e.now()
	if elapsed := now.Sub(e.lastSample); elapsed >= SampleInterval {
		e.speed = float64(current-e.lastBytes) / elapsed.Seconds()
		e.lastSample = now
		e.lastBytes = current
	}
	e.current = current
	e.percent = math.Max(e.percent, percentOf(current, e.total))

	s := e.snapshot(now)
	e.renderer.Render(s)
	return s
}

// Complete marks the transfer as finished and hides the progress.
func (e *Estimator) Complete() {
	s := e.snapshot(e.now())
	s.Percent = 100
	s.Active = false
	s.Completed = true
	s.Visible = false
	e.visible = false
	e.renderer.Render(s)
}

// Fail marks the transfer as failed. The progress stays visible.
func (e *Estimator) Fail(err error) {
	s := e.snapshot(e.now())
	s.Active = false
	s.Failed = true
	s.Err = err
	e.renderer.Render(s)
}

func (e *Estimator) snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Time:      now,
		Title:     e.title,
		Bytes:     e.current,
		Total:     e.total,
		Speed:     e.speed,
		Percent:   e.percent,
		Visible:   e.visible,
		Active:    e.percent < 100,
		Completed: e.percent >= 100,
	}
	if e.speed > 0 {
		remaining := float64(e.total-e.current) / e.speed
		s.ETA = time.Duration(math.Max(remaining, 0) * float64(time.Second))
		s.HasETA = true
	}
	return s
}

func percentOf(current, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return math.Min(100, math.Max(0, 100*float64(current)/float64(total)))
}
