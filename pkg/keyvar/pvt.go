package keyvar

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultNotifyInterval is how often a moving PVTKeyVar re-runs its callbacks.
const DefaultNotifyInterval = time.Second

// PVT is a position, velocity and time triple.
// Time is in seconds since the Unix epoch.
// The zero value is a null PVT.
type PVT struct {
	Pos   float64
	Vel   float64
	Time  float64
	valid bool
}

// NewPVT returns a valid PVT.
func NewPVT(pos, vel, t float64) PVT {
	return PVT{Pos: pos, Vel: vel, Time: t, valid: true}
}

// ParsePVT converts three raw values to a PVT. Any missing or
// unparseable component yields a null PVT and an error.
func ParsePVT(raw []any) (PVT, error) {
	if len(raw) != 3 {
		return PVT{}, fmt.Errorf("%w: PVT needs 3 values, got %d", ErrConversion, len(raw))
	}
	var f [3]float64
	for i, r := range raw {
		v, err := AsFloatOrNone(r)
		if err != nil {
			return PVT{}, err
		}
		if v == nil {
			return PVT{}, fmt.Errorf("%w: PVT component %d is NaN", ErrConversion, i)
		}
		f[i] = v.(float64)
	}
	return NewPVT(f[0], f[1], f[2]), nil
}

// IsValid reports whether p holds data.
func (p PVT) IsValid() bool { return p.valid }

// IsMoving reports whether p is valid with non-zero velocity.
func (p PVT) IsMoving() bool { return p.valid && p.Vel != 0 }

// PosAt extrapolates the position at t. ok is false for a null PVT.
func (p PVT) PosAt(t time.Time) (pos float64, ok bool) {
	if !p.valid {
		return math.NaN(), false
	}
	dt := float64(t.UnixNano())/1e9 - p.Time
	return p.Pos + p.Vel*dt, true
}

func (p PVT) String() string {
	if !p.valid {
		return "PVT(NaN, NaN, NaN)"
	}
	return fmt.Sprintf("PVT(%g, %g, %.3f)", p.Pos, p.Vel, p.Time)
}

// PVTKeyVar is a KeyVar whose slots are PVT values built from raw triples.
type PVTKeyVar struct {
	*KeyVar

	interval time.Duration

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

// NewPVTKeyVar creates a PVT keyword variable. MinCount and MaxCount count
// PVT slots, not raw values; Converters is ignored. When both counts are zero
// the variable holds one PVT.
func NewPVTKeyVar(actor, keyword string, opts Options) *PVTKeyVar {
	opts.Converters = nil
	if opts.MinCount == 0 && opts.MaxCount == 0 {
		opts.MinCount, opts.MaxCount = 1, 1
	}
	if opts.Defaults == nil {
		opts.Defaults = make([]any, opts.MinCount)
		for i := range opts.Defaults {
			opts.Defaults[i] = PVT{}
		}
	}
	notifyInterval := opts.NotifyInterval
	if notifyInterval <= 0 {
		notifyInterval = DefaultNotifyInterval
	}

	p := &PVTKeyVar{
		KeyVar:   newKeyVar(actor, keyword, opts, 3),
		interval: notifyInterval,
	}
	p.convertSlot = p.convertPVT
	p.afterSet = p.reschedule
	return p
}

func (p *PVTKeyVar) convertPVT(slot int, raw []any) any {
	pvt, err := ParsePVT(raw)
	if err != nil {
		p.logger.Warn("invalid PVT value", "slot", slot, "raw", raw, "error", err)
	}
	return pvt
}

// PVTs returns the current PVT slots and whether they are current.
func (p *PVTKeyVar) PVTs() ([]PVT, bool) {
	values, isCurrent := p.Get()
	out := make([]PVT, len(values))
	for i, v := range values {
		out[i], _ = v.(PVT)
	}
	return out, isCurrent
}

// PosAt extrapolates the position of slot i at t.
func (p *PVTKeyVar) PosAt(i int, t time.Time) (float64, bool) {
	pvt, _ := p.Value(i).(PVT)
	return pvt.PosAt(t)
}

// IsMoving reports whether any slot has non-zero velocity.
func (p *PVTKeyVar) IsMoving() bool {
	pvts, _ := p.PVTs()
	for _, pvt := range pvts {
		if pvt.IsMoving() {
			return true
		}
	}
	return false
}

// Stop cancels pending re-notification.
func (p *PVTKeyVar) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *PVTKeyVar) cancelLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// reschedule cancels any pending re-notify and starts a new one if moving.
func (p *PVTKeyVar) reschedule() {
	moving := p.IsMoving()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	if moving {
		p.scheduleLocked()
	}
}

func (p *PVTKeyVar) scheduleLocked() {
	gen := p.gen
	p.timer = p.clock.AfterFunc(p.interval, func() { p.tick(gen) })
}

func (p *PVTKeyVar) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.scheduleLocked()
	p.mu.Unlock()

	p.notify()
}
