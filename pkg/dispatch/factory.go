package dispatch

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
)

// KeysActor is the keyword cache actor that answers getFor refresh commands.
const KeysActor = "keys"

// Registrar accepts KeyVars for routing. Implemented by Dispatcher.
type Registrar interface {
	Add(kv *keyvar.KeyVar)
}

var _ Registrar = (*Dispatcher)(nil)

// FactoryDefaults holds the settings shared by every KeyVar a Factory builds.
type FactoryDefaults struct {
	Converters       []keyvar.Converter
	MinCount         int
	MaxCount         int
	AllowRefresh     bool
	RefreshTimeLimit time.Duration
	NotifyInterval   time.Duration
	Clock            clockwork.Clock
	Logger           *slog.Logger
}

// KeyOptions overrides FactoryDefaults for a single keyword.
// Zero fields inherit the factory defaults.
type KeyOptions struct {
	Converters   []keyvar.Converter
	MinCount     int
	MaxCount     int
	Defaults     []any
	RefreshActor string
	RefreshCmd   string
	Description  string

	// AllowRefresh overrides FactoryDefaults.AllowRefresh when set.
	AllowRefresh *bool
}

// Factory builds the KeyVars of one actor and registers them. KeyVars built
// with refresh allowed and no explicit refresh command are collected until
// SetKeysRefreshCmd gives them a shared refresh through the keys actor.
type Factory struct {
	actor    string
	reg      Registrar
	defaults FactoryDefaults

	mu      sync.Mutex
	pending []*keyvar.KeyVar
}

// NewFactory creates a Factory for actor that registers with reg.
func NewFactory(actor string, reg Registrar, defaults FactoryDefaults) *Factory {
	return &Factory{actor: actor, reg: reg, defaults: defaults}
}

// Actor returns the actor whose KeyVars this factory builds.
func (f *Factory) Actor() string { return f.actor }

func (f *Factory) options(o KeyOptions) (keyvar.Options, bool) {
	opts := keyvar.Options{
		Converters:       f.defaults.Converters,
		MinCount:         f.defaults.MinCount,
		MaxCount:         f.defaults.MaxCount,
		Defaults:         o.Defaults,
		RefreshActor:     o.RefreshActor,
		RefreshCmd:       o.RefreshCmd,
		RefreshTimeLimit: f.defaults.RefreshTimeLimit,
		Description:      o.Description,
		NotifyInterval:   f.defaults.NotifyInterval,
		Clock:            f.defaults.Clock,
		Logger:           f.defaults.Logger,
	}
	if o.Converters != nil {
		opts.Converters = o.Converters
		opts.MinCount, opts.MaxCount = 0, 0
	}
	if o.MinCount != 0 || o.MaxCount != 0 {
		opts.MinCount, opts.MaxCount = o.MinCount, o.MaxCount
	}

	allow := f.defaults.AllowRefresh
	if o.AllowRefresh != nil {
		allow = *o.AllowRefresh
	}
	if !allow {
		opts.RefreshActor, opts.RefreshCmd = "", ""
	}
	return opts, allow && o.RefreshCmd == ""
}

// New builds and registers a KeyVar for keyword.
func (f *Factory) New(keyword string, o KeyOptions) *keyvar.KeyVar {
	opts, needsRefresh := f.options(o)
	kv := keyvar.New(f.actor, keyword, opts)
	f.register(kv, needsRefresh)
	return kv
}

// NewPVT builds and registers a PVTKeyVar for keyword. Converters are ignored.
func (f *Factory) NewPVT(keyword string, o KeyOptions) *keyvar.PVTKeyVar {
	opts, needsRefresh := f.options(o)
	if o.MinCount == 0 && o.MaxCount == 0 {
		opts.MinCount, opts.MaxCount = 0, 0
	}
	kv := keyvar.NewPVTKeyVar(f.actor, keyword, opts)
	f.register(kv.KeyVar, needsRefresh)
	return kv
}

func (f *Factory) register(kv *keyvar.KeyVar, needsRefresh bool) {
	if needsRefresh {
		f.mu.Lock()
		f.pending = append(f.pending, kv)
		f.mu.Unlock()
	}
	f.reg.Add(kv)
}

// SetKeysRefreshCmd gives every collected KeyVar the refresh command
// "getFor=<actor> <kw>..." on the keys actor, or "getFor=<actor>" if
// getAllKeys is set. It returns the refresh command, or "" if no KeyVars
// were waiting.
func (f *Factory) SetKeysRefreshCmd(getAllKeys bool) string {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(pending) == 0 {
		return ""
	}

	cmd := "getFor=" + f.actor
	if !getAllKeys {
		names := make([]string, len(pending))
		for i, kv := range pending {
			names[i] = kv.Keyword()
		}
		cmd += " " + strings.Join(names, " ")
	}
	for _, kv := range pending {
		kv.SetRefreshCmd(KeysActor, cmd)
	}
	return cmd
}

// Pending returns the number of KeyVars waiting for a keys refresh command.
func (f *Factory) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
