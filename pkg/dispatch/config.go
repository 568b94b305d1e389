package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hub-protocol/hub-go/pkg/keyvar"
	"github.com/hub-protocol/hub-go/pkg/log"
)

// Command ID ranges.
const (
	DefaultUserIDMin    = 1
	DefaultUserIDMax    = 29999
	DefaultRefreshIDMin = 30000
	DefaultRefreshIDMax = 32767
)

// Config configures a Dispatcher.
type Config struct {
	// Logger is used for operational logging.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives the protocol trace.
	// If nil, tracing is disabled.
	ProtocolLogger log.Logger

	// Clock drives deadlines and sweep tickers. Nil means the real clock.
	Clock clockwork.Clock

	// TimeoutCheckInterval is the period of the timeout sweep (default: 1s).
	TimeoutCheckInterval time.Duration

	// RefreshCheckInterval is the period of the refresh sweep (default: 1s).
	RefreshCheckInterval time.Duration

	// UserIDMin and UserIDMax bound IDs of application commands.
	UserIDMin int
	UserIDMax int

	// RefreshIDMin and RefreshIDMax bound IDs of refresh commands.
	RefreshIDMin int
	RefreshIDMax int

	// DefaultRefreshTimeLimit applies to refresh commands whose KeyVar has no
	// time limit of its own (default: 20s).
	DefaultRefreshTimeLimit time.Duration

	// ConnectionID tags protocol trace events. Empty means a new UUID.
	ConnectionID string
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		TimeoutCheckInterval:    time.Second,
		RefreshCheckInterval:    time.Second,
		UserIDMin:               DefaultUserIDMin,
		UserIDMax:               DefaultUserIDMax,
		RefreshIDMin:            DefaultRefreshIDMin,
		RefreshIDMax:            DefaultRefreshIDMax,
		DefaultRefreshTimeLimit: keyvar.DefaultRefreshTimeLimit,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TimeoutCheckInterval <= 0 {
		c.TimeoutCheckInterval = def.TimeoutCheckInterval
	}
	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = def.RefreshCheckInterval
	}
	if c.UserIDMin == 0 && c.UserIDMax == 0 {
		c.UserIDMin, c.UserIDMax = def.UserIDMin, def.UserIDMax
	}
	if c.RefreshIDMin == 0 && c.RefreshIDMax == 0 {
		c.RefreshIDMin, c.RefreshIDMax = def.RefreshIDMin, def.RefreshIDMax
	}
	if c.DefaultRefreshTimeLimit <= 0 {
		c.DefaultRefreshTimeLimit = def.DefaultRefreshTimeLimit
	}
	if c.ConnectionID == "" {
		c.ConnectionID = uuid.NewString()
	}
	return c
}

// validate checks the ID ranges. ID 0 is reserved for unsolicited replies.
func (c Config) validate() error {
	if c.UserIDMin < 1 || c.UserIDMax < c.UserIDMin {
		return fmt.Errorf("invalid user command ID range [%d, %d]", c.UserIDMin, c.UserIDMax)
	}
	if c.RefreshIDMin < 1 || c.RefreshIDMax < c.RefreshIDMin {
		return fmt.Errorf("invalid refresh command ID range [%d, %d]", c.RefreshIDMin, c.RefreshIDMax)
	}
	if c.UserIDMin <= c.RefreshIDMax && c.RefreshIDMin <= c.UserIDMax {
		return fmt.Errorf("user ID range [%d, %d] overlaps refresh ID range [%d, %d]",
			c.UserIDMin, c.UserIDMax, c.RefreshIDMin, c.RefreshIDMax)
	}
	return nil
}
