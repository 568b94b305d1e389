package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/dispatch"
	"github.com/hub-protocol/hub-go/pkg/keyvar"
)

// BuildOptions configures the KeyVars built from a catalog.
type BuildOptions struct {
	// Clock stamps updates and drives PVT re-notification. Nil means the real clock.
	Clock clockwork.Clock

	// NotifyInterval is the PVT re-notify period. Zero means the keyvar default.
	NotifyInterval time.Duration

	// Logger receives conversion warnings and callback panics.
	Logger *slog.Logger
}

// Model holds the KeyVars built from a catalog.
type Model struct {
	keyVars   map[string]map[string]*keyvar.KeyVar
	pvts      map[string]map[string]*keyvar.PVTKeyVar
	refreshes map[string]string
}

// Build creates a KeyVar for every keyword in c and registers it with reg.
// Keywords of one actor share a keys refresh command when the actor allows
// refresh.
func Build(c *Catalog, reg dispatch.Registrar, opts BuildOptions) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		keyVars:   make(map[string]map[string]*keyvar.KeyVar),
		pvts:      make(map[string]map[string]*keyvar.PVTKeyVar),
		refreshes: make(map[string]string),
	}

	for _, a := range c.Actors {
		f := dispatch.NewFactory(a.Name, reg, dispatch.FactoryDefaults{
			AllowRefresh:     a.Refresh.Allowed,
			RefreshTimeLimit: time.Duration(a.Refresh.TimeLimit * float64(time.Second)),
			NotifyInterval:   opts.NotifyInterval,
			Clock:            opts.Clock,
			Logger:           opts.Logger,
		})

		actorKVs := make(map[string]*keyvar.KeyVar, len(a.Keywords))
		for _, kw := range a.Keywords {
			ko, err := kw.keyOptions()
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", a.Name, kw.Name, err)
			}
			key := strings.ToLower(kw.Name)
			if kw.PVT {
				pvt := f.NewPVT(kw.Name, ko)
				if m.pvts[a.Name] == nil {
					m.pvts[a.Name] = make(map[string]*keyvar.PVTKeyVar)
				}
				m.pvts[a.Name][key] = pvt
				actorKVs[key] = pvt.KeyVar
				continue
			}
			actorKVs[key] = f.New(kw.Name, ko)
		}
		m.keyVars[a.Name] = actorKVs

		if cmd := f.SetKeysRefreshCmd(a.Refresh.GetAllKeys); cmd != "" {
			m.refreshes[a.Name] = cmd
		}
	}
	return m, nil
}

func (kw *KeywordDef) keyOptions() (dispatch.KeyOptions, error) {
	o := dispatch.KeyOptions{Description: kw.Description}
	o.MinCount, o.MaxCount = kw.counts()

	if !kw.PVT {
		convs, err := kw.converters()
		if err != nil {
			return o, err
		}
		o.Converters = convs
		if len(kw.Default) > 0 {
			defaults, err := convertDefaults(convs, kw.Default)
			if err != nil {
				return o, err
			}
			o.Defaults = defaults
		}
	}

	if r := kw.Refresh; r != nil {
		o.RefreshActor = r.Actor
		o.RefreshCmd = r.Cmd
		o.AllowRefresh = r.Allowed
		if o.AllowRefresh == nil && r.Cmd != "" {
			allow := true
			o.AllowRefresh = &allow
		}
	}
	return o, nil
}

// convertDefaults converts YAML default values with the keyword's
// converters. Nil defaults stay nil.
func convertDefaults(convs []keyvar.Converter, raw []any) ([]any, error) {
	convs = keyvar.Converters(convs, len(raw))
	out := make([]any, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		conv, err := convs[i](v)
		if err != nil {
			return nil, fmt.Errorf("default %d: %w", i, err)
		}
		out[i] = conv
	}
	return out, nil
}

// Actors returns the actor names in sorted order.
func (m *Model) Actors() []string {
	actors := make([]string, 0, len(m.keyVars))
	for a := range m.keyVars {
		actors = append(actors, a)
	}
	slices.Sort(actors)
	return actors
}

// KeyVar returns the KeyVar for actor.keyword. The keyword match ignores case.
func (m *Model) KeyVar(actor, keyword string) (*keyvar.KeyVar, bool) {
	kv, ok := m.keyVars[actor][strings.ToLower(keyword)]
	return kv, ok
}

// PVT returns the PVTKeyVar for actor.keyword.
func (m *Model) PVT(actor, keyword string) (*keyvar.PVTKeyVar, bool) {
	kv, ok := m.pvts[actor][strings.ToLower(keyword)]
	return kv, ok
}

// KeyVars returns the KeyVars of every actor, keyed by actor and lowercase
// keyword. The maps are copies.
func (m *Model) KeyVars() map[string]map[string]*keyvar.KeyVar {
	out := make(map[string]map[string]*keyvar.KeyVar, len(m.keyVars))
	for a, kvs := range m.keyVars {
		inner := make(map[string]*keyvar.KeyVar, len(kvs))
		for k, kv := range kvs {
			inner[k] = kv
		}
		out[a] = inner
	}
	return out
}

// RefreshCmd returns the shared keys refresh command of actor, if any.
func (m *Model) RefreshCmd(actor string) (string, bool) {
	cmd, ok := m.refreshes[actor]
	return cmd, ok
}

// Stop stops PVT re-notification.
func (m *Model) Stop() {
	for _, pvts := range m.pvts {
		for _, p := range pvts {
			p.Stop()
		}
	}
}
