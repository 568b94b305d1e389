package keyvar

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/wire"
)

// Unbounded is the MaxCount value for keywords with no upper value count.
const Unbounded = -1

// DefaultRefreshTimeLimit bounds how long a refresh command may run.
const DefaultRefreshTimeLimit = 20 * time.Second

var (
	// ErrCountMismatch indicates the number of values is outside [MinCount, MaxCount].
	ErrCountMismatch = errors.New("value count mismatch")

	// ErrCallbackNotFound indicates RemoveCallback was given an unknown ID.
	ErrCallbackNotFound = errors.New("callback not found")
)

// Callback is invoked with a copy of the current values after every change.
type Callback func(values []any, isCurrent bool, kv *KeyVar)

// CallbackID identifies a registered callback.
type CallbackID uint64

// Options configures a KeyVar.
type Options struct {
	// Converters holds one converter per value slot; the last one repeats.
	// An empty list converts with AsRaw.
	Converters []Converter

	// MinCount and MaxCount bound the number of values. When both are zero
	// the count is fixed at len(Converters). Use Unbounded for no maximum.
	MinCount int
	MaxCount int

	// Defaults is the value list restored by Set(nil, ...).
	// Nil means MinCount nil values.
	Defaults []any

	// RefreshActor and RefreshCmd make the hub re-send this keyword.
	// RefreshActor defaults to the keyword's actor.
	RefreshActor string
	RefreshCmd   string

	// RefreshTimeLimit bounds the refresh command. Zero leaves the limit to
	// the dispatcher, which defaults to DefaultRefreshTimeLimit.
	RefreshTimeLimit time.Duration

	Description string

	// Clock stamps updates and drives PVT re-notification. Nil means the real clock.
	Clock clockwork.Clock

	// NotifyInterval is the PVT re-notify period. Zero means DefaultNotifyInterval.
	// Ignored by plain KeyVars.
	NotifyInterval time.Duration

	// Logger receives conversion warnings and callback panics.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

type callbackEntry struct {
	id CallbackID
	fn Callback
}

// KeyVar holds the latest value of one (actor, keyword) pair.
type KeyVar struct {
	actor       string
	keyword     string
	description string
	converters  []Converter
	minCount    int
	maxCount    int
	defaults    []any
	clock       clockwork.Clock
	logger      *slog.Logger

	// slotSize is the number of raw values consumed per slot.
	slotSize    int
	convertSlot func(slot int, raw []any) any
	afterSet    func()

	mu               sync.RWMutex
	values           []any
	isCurrent        bool
	updated          time.Time
	lastMsg          *wire.Message
	refreshActor     string
	refreshCmd       string
	refreshTimeLimit time.Duration
	callbacks        []callbackEntry
	nextID           CallbackID
}

// New creates a KeyVar for actor.keyword. The initial value is the default
// list and the variable is not current.
func New(actor, keyword string, opts Options) *KeyVar {
	kv := newKeyVar(actor, keyword, opts, 1)
	kv.convertSlot = kv.convertScalar
	return kv
}

func newKeyVar(actor, keyword string, opts Options, slotSize int) *KeyVar {
	minCount, maxCount := opts.MinCount, opts.MaxCount
	if minCount == 0 && maxCount == 0 {
		minCount = len(opts.Converters)
		maxCount = minCount
	}
	if maxCount != Unbounded && maxCount < minCount {
		maxCount = minCount
	}

	defaults := opts.Defaults
	if defaults == nil {
		defaults = make([]any, minCount)
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeLimit := max(opts.RefreshTimeLimit, 0)
	refreshActor := opts.RefreshActor
	if refreshActor == "" && opts.RefreshCmd != "" {
		refreshActor = actor
	}

	return &KeyVar{
		actor:            actor,
		keyword:          keyword,
		description:      opts.Description,
		converters:       opts.Converters,
		minCount:         minCount,
		maxCount:         maxCount,
		defaults:         cloneValues(defaults),
		clock:            clock,
		logger:           logger.With("actor", actor, "keyword", keyword),
		slotSize:         slotSize,
		values:           cloneValues(defaults),
		refreshActor:     refreshActor,
		refreshCmd:       opts.RefreshCmd,
		refreshTimeLimit: timeLimit,
	}
}

// Actor returns the actor that publishes this keyword.
func (kv *KeyVar) Actor() string { return kv.actor }

// Keyword returns the keyword name as declared.
func (kv *KeyVar) Keyword() string { return kv.keyword }

// Description returns the human-readable description.
func (kv *KeyVar) Description() string { return kv.description }

// CountRange returns the accepted value count range.
// max is Unbounded when there is no upper limit.
func (kv *KeyVar) CountRange() (minCount, maxCount int) { return kv.minCount, kv.maxCount }

// String returns "actor.keyword".
func (kv *KeyVar) String() string { return kv.actor + "." + kv.keyword }

// Get returns a copy of the current values and whether they are current.
func (kv *KeyVar) Get() ([]any, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return cloneValues(kv.values), kv.isCurrent
}

// Value returns the value in slot i, or nil if out of range.
func (kv *KeyVar) Value(i int) any {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if i < 0 || i >= len(kv.values) {
		return nil
	}
	return kv.values[i]
}

// IsCurrent reports whether the value reflects the hub's latest state.
func (kv *KeyVar) IsCurrent() bool {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.isCurrent
}

// Count returns the number of values currently held.
func (kv *KeyVar) Count() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.values)
}

// Timestamp returns the time of the last Set. Zero if never set.
func (kv *KeyVar) Timestamp() time.Time {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.updated
}

// LastMessage returns the reply that carried the latest value, if any.
func (kv *KeyVar) LastMessage() *wire.Message {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.lastMsg
}

// Set converts raw and stores the result, then runs the callbacks.
// A nil raw list restores the defaults and forces isCurrent to false.
// msg is the reply that carried the values and may be nil.
func (kv *KeyVar) Set(raw []any, isCurrent bool, msg *wire.Message) error {
	var values []any
	if raw == nil {
		values = cloneValues(kv.defaults)
		isCurrent = false
	} else {
		n, err := kv.slotCount(len(raw))
		if err != nil {
			return err
		}
		values = make([]any, n)
		for i := range values {
			values[i] = kv.convertSlot(i, raw[i*kv.slotSize:(i+1)*kv.slotSize])
		}
	}

	kv.mu.Lock()
	kv.values = values
	kv.isCurrent = isCurrent
	kv.updated = kv.clock.Now()
	kv.lastMsg = msg
	kv.mu.Unlock()

	kv.notify()
	if kv.afterSet != nil {
		kv.afterSet()
	}
	return nil
}

// SetNotCurrent marks the value stale without changing it and runs the callbacks.
func (kv *KeyVar) SetNotCurrent() {
	kv.mu.Lock()
	kv.isCurrent = false
	kv.mu.Unlock()
	kv.notify()
}

func (kv *KeyVar) slotCount(rawLen int) (int, error) {
	if rawLen%kv.slotSize != 0 {
		return 0, fmt.Errorf("%w: %s got %d values, want a multiple of %d",
			ErrCountMismatch, kv, rawLen, kv.slotSize)
	}
	n := rawLen / kv.slotSize
	if n < kv.minCount || (kv.maxCount != Unbounded && n > kv.maxCount) {
		return 0, fmt.Errorf("%w: %s got %d values, want %s",
			ErrCountMismatch, kv, n, kv.countDesc())
	}
	return n, nil
}

func (kv *KeyVar) countDesc() string {
	switch {
	case kv.maxCount == Unbounded:
		return fmt.Sprintf("at least %d", kv.minCount)
	case kv.minCount == kv.maxCount:
		return fmt.Sprintf("%d", kv.minCount)
	default:
		return fmt.Sprintf("%d to %d", kv.minCount, kv.maxCount)
	}
}

func (kv *KeyVar) converterFor(slot int) Converter {
	if len(kv.converters) == 0 {
		return AsRaw
	}
	if slot >= len(kv.converters) {
		return kv.converters[len(kv.converters)-1]
	}
	return kv.converters[slot]
}

func (kv *KeyVar) convertScalar(slot int, raw []any) any {
	v, err := kv.converterFor(slot)(raw[0])
	if err != nil {
		kv.logger.Warn("invalid keyword value", "slot", slot, "raw", raw[0], "error", err)
		return nil
	}
	return v
}

// AddCallback registers fn. If callNow is set and the variable has been set
// at least once, fn runs immediately with the current values.
func (kv *KeyVar) AddCallback(fn Callback, callNow bool) CallbackID {
	kv.mu.Lock()
	kv.nextID++
	id := kv.nextID
	kv.callbacks = append(kv.callbacks, callbackEntry{id: id, fn: fn})
	hasData := !kv.updated.IsZero()
	values := cloneValues(kv.values)
	isCurrent := kv.isCurrent
	kv.mu.Unlock()

	if callNow && hasData {
		kv.runCallback(fn, values, isCurrent)
	}
	return id
}

// RemoveCallback unregisters the callback with the given ID.
func (kv *KeyVar) RemoveCallback(id CallbackID) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for i, cb := range kv.callbacks {
		if cb.id == id {
			kv.callbacks = append(kv.callbacks[:i], kv.callbacks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s callback %d", ErrCallbackNotFound, kv, id)
}

// CallbackCount returns the number of registered callbacks.
func (kv *KeyVar) CallbackCount() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.callbacks)
}

// notify snapshots the state and callbacks, then runs the callbacks unlocked.
func (kv *KeyVar) notify() {
	kv.mu.RLock()
	callbacks := make([]callbackEntry, len(kv.callbacks))
	copy(callbacks, kv.callbacks)
	values := cloneValues(kv.values)
	isCurrent := kv.isCurrent
	kv.mu.RUnlock()

	for _, cb := range callbacks {
		kv.runCallback(cb.fn, values, isCurrent)
	}
}

func (kv *KeyVar) runCallback(fn Callback, values []any, isCurrent bool) {
	defer func() {
		if r := recover(); r != nil {
			kv.logger.Error("keyvar callback panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn(values, isCurrent, kv)
}

// HasRefreshCmd reports whether a refresh command is set.
func (kv *KeyVar) HasRefreshCmd() bool {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.refreshCmd != ""
}

// RefreshInfo returns the refresh actor, command and time limit.
func (kv *KeyVar) RefreshInfo() (actor, cmd string, timeLimit time.Duration) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.refreshActor, kv.refreshCmd, kv.refreshTimeLimit
}

// SetRefreshCmd sets the refresh command. An empty actor means this keyword's actor.
func (kv *KeyVar) SetRefreshCmd(actor, cmd string) {
	if actor == "" {
		actor = kv.actor
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.refreshActor = actor
	kv.refreshCmd = strings.TrimSpace(cmd)
}

// ClearRefreshCmd removes the refresh command.
func (kv *KeyVar) ClearRefreshCmd() {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.refreshActor = ""
	kv.refreshCmd = ""
}

func cloneValues(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	copy(out, values)
	return out
}
