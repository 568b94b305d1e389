package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the console configuration. Fields can be set from a YAML
// file (-config) and from flags; explicitly set flags win.
type Config struct {
	Addr        string        `yaml:"addr"`
	Program     string        `yaml:"program"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Catalogs    []string      `yaml:"catalogs"`
	ProtocolLog string        `yaml:"protocolLog"`
	LogLevel    string        `yaml:"logLevel"`
	MetricsAddr string        `yaml:"metricsAddr"`
	Discover    bool          `yaml:"discover"`
	TimeLimit   time.Duration `yaml:"timeLimit"`
	NoReconnect bool          `yaml:"noReconnect"`
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func loadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// mergeConfig overlays flag values onto file values. A flag value is used if
// the flag was set on the command line or the file leaves the field empty.
func mergeConfig(file, flags Config, set map[string]bool) Config {
	out := file
	pick := func(name string, isZero bool) bool {
		return set[name] || isZero
	}
	if pick("addr", file.Addr == "") {
		out.Addr = flags.Addr
	}
	if pick("program", file.Program == "") {
		out.Program = flags.Program
	}
	if pick("user", file.User == "") {
		out.User = flags.User
	}
	if pick("password", file.Password == "") {
		out.Password = flags.Password
	}
	if set["catalog"] {
		out.Catalogs = append(append([]string(nil), file.Catalogs...), flags.Catalogs...)
	}
	if pick("protocol-log", file.ProtocolLog == "") {
		out.ProtocolLog = flags.ProtocolLog
	}
	if pick("log-level", file.LogLevel == "") {
		out.LogLevel = flags.LogLevel
	}
	if pick("metrics-addr", file.MetricsAddr == "") {
		out.MetricsAddr = flags.MetricsAddr
	}
	if set["discover"] {
		out.Discover = flags.Discover
	}
	if pick("time-limit", file.TimeLimit == 0) {
		out.TimeLimit = flags.TimeLimit
	}
	if set["no-reconnect"] {
		out.NoReconnect = flags.NoReconnect
	}
	return out
}

// validate checks the configuration and returns the parsed log level.
func (c Config) validate() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Addr == "" && !c.Discover {
		return level, errors.New("hub address required (-addr or -discover)")
	}
	if c.User != "" && c.Program == "" {
		return level, errors.New("program required for login (-program)")
	}
	if c.TimeLimit < 0 {
		return level, fmt.Errorf("time limit must not be negative, got %s", c.TimeLimit)
	}
	return level, nil
}
