// Package catalog loads YAML keyword catalogs and builds the KeyVars they
// describe.
//
// A catalog lists actors and, per actor, the keywords a client wants to
// track:
//
//	actors:
//	  - name: tcc
//	    refresh: {allowed: true, getAllKeys: false}
//	    keywords:
//	      - name: AxePos
//	        types: [floatOrNone]
//	        count: 3
//	      - name: TCCStatus
//	        types: [str, str]
//	        default: [Idle, ""]
//	      - name: AxePVT
//	        pvt: true
//	        count: 3
//	      - name: Limits
//	        types: [float]
//	        min: 2
//	        max: -1
//	        refresh: {cmd: showlimits}
//
// Keywords without an explicit refresh command share the actor's
// "getFor=<actor>" refresh through the keys actor when refresh is allowed.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
)

// ErrInvalidCatalog indicates a catalog that parses but cannot be built.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is a parsed keyword catalog.
type Catalog struct {
	Actors []ActorDef `yaml:"actors"`
}

// ActorDef describes the keywords tracked for one actor.
type ActorDef struct {
	Name     string        `yaml:"name"`
	Refresh  RefreshPolicy `yaml:"refresh"`
	Keywords []KeywordDef  `yaml:"keywords"`
}

// RefreshPolicy controls the shared keys refresh of an actor.
type RefreshPolicy struct {
	Allowed    bool    `yaml:"allowed"`
	GetAllKeys bool    `yaml:"getAllKeys"`
	TimeLimit  float64 `yaml:"timeLimit"` // seconds; 0 = dispatcher default
}

// KeywordDef describes one keyword.
type KeywordDef struct {
	Name        string          `yaml:"name"`
	Types       []string        `yaml:"types"`
	Count       *int            `yaml:"count"`
	Min         *int            `yaml:"min"`
	Max         *int            `yaml:"max"` // -1 = unbounded
	Default     []any           `yaml:"default"`
	PVT         bool            `yaml:"pvt"`
	Refresh     *KeywordRefresh `yaml:"refresh"`
	Description string          `yaml:"description"`
}

// KeywordRefresh overrides the refresh of a single keyword.
type KeywordRefresh struct {
	Actor   string `yaml:"actor"`
	Cmd     string `yaml:"cmd"`
	Allowed *bool  `yaml:"allowed"`
}

// Parse parses a catalog from YAML bytes and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load loads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadAll loads several catalog files and merges them into one.
func LoadAll(paths ...string) (*Catalog, error) {
	merged := &Catalog{}
	for _, path := range paths {
		c, err := Load(path)
		if err != nil {
			return nil, err
		}
		merged.Actors = append(merged.Actors, c.Actors...)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Validate checks names, converter types and counts.
func (c *Catalog) Validate() error {
	actors := make(map[string]bool)
	for i, a := range c.Actors {
		if a.Name == "" {
			return fmt.Errorf("%w: actor %d has no name", ErrInvalidCatalog, i)
		}
		if actors[a.Name] {
			return fmt.Errorf("%w: actor %s listed twice", ErrInvalidCatalog, a.Name)
		}
		actors[a.Name] = true

		keywords := make(map[string]bool)
		for j, kw := range a.Keywords {
			if kw.Name == "" {
				return fmt.Errorf("%w: %s keyword %d has no name", ErrInvalidCatalog, a.Name, j)
			}
			key := strings.ToLower(kw.Name)
			if keywords[key] {
				return fmt.Errorf("%w: %s.%s listed twice", ErrInvalidCatalog, a.Name, kw.Name)
			}
			keywords[key] = true
			if err := kw.validate(); err != nil {
				return fmt.Errorf("%w: %s.%s: %w", ErrInvalidCatalog, a.Name, kw.Name, err)
			}
		}
	}
	return nil
}

func (kw *KeywordDef) validate() error {
	if kw.PVT {
		if len(kw.Types) > 0 {
			return errors.New("pvt keywords take no types")
		}
		if len(kw.Default) > 0 {
			return errors.New("pvt keywords take no default")
		}
	} else {
		if len(kw.Types) == 0 {
			return errors.New("no types")
		}
		if _, err := kw.converters(); err != nil {
			return err
		}
	}

	if kw.Count != nil && (kw.Min != nil || kw.Max != nil) {
		return errors.New("count excludes min and max")
	}
	minCount, maxCount := kw.counts()
	if minCount < 0 || (maxCount != keyvar.Unbounded && maxCount < minCount) {
		return fmt.Errorf("bad count range [%d, %d]", minCount, maxCount)
	}
	if kw.PVT && minCount == 0 && maxCount == 0 {
		return nil
	}
	if len(kw.Default) > 0 {
		n := len(kw.Default)
		lo, hi := minCount, maxCount
		if lo == 0 && hi == 0 {
			lo, hi = len(kw.Types), len(kw.Types)
		}
		if n < lo || (hi != keyvar.Unbounded && n > hi) {
			return fmt.Errorf("%d default values outside count range [%d, %d]", n, lo, hi)
		}
	}
	return nil
}

// counts returns the KeyVar count range. Zero for both means one value
// per type.
func (kw *KeywordDef) counts() (minCount, maxCount int) {
	switch {
	case kw.Count != nil:
		return *kw.Count, *kw.Count
	case kw.Min != nil || kw.Max != nil:
		if kw.Min != nil {
			minCount = *kw.Min
		}
		maxCount = keyvar.Unbounded
		if kw.Max != nil {
			maxCount = *kw.Max
		}
		return minCount, maxCount
	default:
		return 0, 0
	}
}

func (kw *KeywordDef) converters() ([]keyvar.Converter, error) {
	out := make([]keyvar.Converter, len(kw.Types))
	for i, name := range kw.Types {
		conv, err := keyvar.ConverterByName(name)
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}
