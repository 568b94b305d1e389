// Command hub-console is an interactive hub protocol client.
//
// It connects and logs in to a hub, loads keyword catalogs, keeps the
// catalog keywords current and lets the user issue and abort commands.
//
// Usage:
//
//	hub-console [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-addr string          Hub address host:port
//	-program string       Program name for login
//	-user string          Username for login (login is skipped if empty)
//	-password string      Password for login
//	-catalog string       Keyword catalog file (repeatable)
//	-protocol-log string  Write the protocol trace to a .hlog file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-discover             Find the hub via mDNS when -addr is not set
//	-time-limit duration  Time limit for console commands (default 1m0s)
//	-no-reconnect         Exit when the connection is lost
//
// Examples:
//
//	# Connect and log in, loading the TCC catalog
//	hub-console -addr hub.example.org:9877 -program TUI -user alice \
//	    -password secret -catalog catalogs/tcc.yaml
//
//	# Find the hub on the local network and record a trace
//	hub-console -discover -protocol-log session.hlog
//
//	# Use a config file and expose metrics
//	hub-console -config console.yaml -metrics-addr :9100
//
// Interactive Commands:
//
//	cmd <actor> <text>        - Send a command
//	abort <id>                - Abort a running command
//	watch <actor> <keyword>   - Print keyword updates
//	show [actor]              - Show keyword values
//	pending                   - List running commands
//	refresh [actor]           - Re-issue refresh commands
//	status                    - Show connection status
//	quit                      - Exit the console
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hub-protocol/hub-go/cmd/hub-console/interactive"
	"github.com/hub-protocol/hub-go/pkg/catalog"
	"github.com/hub-protocol/hub-go/pkg/connection"
	"github.com/hub-protocol/hub-go/pkg/discovery"
	"github.com/hub-protocol/hub-go/pkg/dispatch"
	hublog "github.com/hub-protocol/hub-go/pkg/log"
	"github.com/hub-protocol/hub-go/pkg/metrics"
	"github.com/hub-protocol/hub-go/pkg/transport"
)

var (
	flags      Config
	configFile string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Addr, "addr", "", "Hub address host:port")
	flag.StringVar(&flags.Program, "program", "", "Program name for login")
	flag.StringVar(&flags.User, "user", "", "Username for login (login is skipped if empty)")
	flag.StringVar(&flags.Password, "password", "", "Password for login")
	flag.Var((*stringList)(&flags.Catalogs), "catalog", "Keyword catalog file (repeatable)")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write the protocol trace to a .hlog file")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the hub via mDNS when -addr is not set")
	flag.DurationVar(&flags.TimeLimit, "time-limit", interactive.DefaultTimeLimit, "Time limit for console commands")
	flag.BoolVar(&flags.NoReconnect, "no-reconnect", false, "Exit when the connection is lost")
}

// logOutput forwards log output to a writer that can be swapped once the
// console owns the terminal.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *logOutput) set(w io.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.w = w
}

func main() {
	flag.Parse()

	cfg := flags
	if configFile != "" {
		fileCfg, err := loadConfigFile(configFile)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		cfg = mergeConfig(fileCfg, flags, set)
	}

	level, err := cfg.validate()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	out := &logOutput{w: os.Stderr}
	log.SetOutput(out)
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Addr == "" {
		browseCfg := discovery.DefaultBrowserConfig()
		browseCfg.Logger = logger
		hub, err := discovery.NewBrowser(browseCfg).FindHub(ctx, cfg.Program)
		if err != nil {
			log.Fatalf("Hub discovery failed: %v", err)
		}
		log.Printf("Discovered %s", hub)
		cfg.Addr = hub.Address()
	}

	connID := uuid.NewString()
	protoLogger, closeTrace, err := openProtocolLog(cfg.ProtocolLog, logger, level)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	defer closeTrace()

	conn := transport.NewLineConn(transport.Config{
		Address:        cfg.Addr,
		Program:        cfg.Program,
		Username:       cfg.User,
		Password:       cfg.Password,
		Logger:         logger,
		ProtocolLogger: protoLogger,
		ConnectionID:   connID,
	})

	dispCfg := dispatch.DefaultConfig()
	dispCfg.Logger = logger
	dispCfg.ProtocolLogger = protoLogger
	dispCfg.ConnectionID = connID
	disp, err := dispatch.New(conn, dispCfg)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	var model *catalog.Model
	if len(cfg.Catalogs) > 0 {
		c, err := catalog.LoadAll(cfg.Catalogs...)
		if err != nil {
			log.Fatalf("Failed to load catalogs: %v", err)
		}
		model, err = catalog.Build(c, disp, catalog.BuildOptions{Logger: logger})
		if err != nil {
			log.Fatalf("Failed to build catalogs: %v", err)
		}
		defer model.Stop()
		log.Printf("Loaded %d keywords for actors %v", len(disp.KeyVars()), model.Actors())
	}

	if cfg.MetricsAddr != "" {
		srv := startMetrics(cfg.MetricsAddr, logger)
		defer srv.Close()
	}

	mgrCfg := connection.DefaultConfig()
	mgrCfg.AutoReconnect = !cfg.NoReconnect
	mgrCfg.Logger = logger
	mgr := connection.NewManager(conn, mgrCfg)
	mgr.OnReconnecting(func(attempt int, delay time.Duration) {
		log.Printf("Reconnecting to %s in %s (attempt %d)", cfg.Addr, delay.Round(time.Millisecond), attempt)
	})

	console, err := interactive.New(disp, interactive.Config{
		Model:     model,
		ConnState: func() string { return mgr.State().String() },
		Address:   cfg.Addr,
		TimeLimit: cfg.TimeLimit,
	})
	if err != nil {
		log.Fatalf("Failed to start console: %v", err)
	}
	out.set(console.Stdout())

	go func() {
		if err := disp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()
	go func() {
		err := mgr.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Connection to %s ended: %v", cfg.Addr, err)
			cancel()
			console.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
			console.Close()
		case <-ctx.Done():
		}
	}()

	log.Printf("Connecting to %s (session %s)", cfg.Addr, connID)
	console.Run(ctx, cancel)

	conn.Close()
	log.Println("Goodbye!")
}

// openProtocolLog builds the protocol trace logger. Debug logging also
// mirrors trace events to the operational logger.
func openProtocolLog(path string, logger *slog.Logger, level slog.Level) (hublog.Logger, func(), error) {
	var loggers []hublog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := hublog.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("closing protocol log", "path", path, "error", err)
			}
		}
	}
	if level <= slog.LevelDebug {
		loggers = append(loggers, hublog.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return hublog.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return hublog.NewMultiLogger(loggers...), closeFn, nil
	}
}

func startMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Printf("Metrics on http://%s/metrics", addr)
	return srv
}
