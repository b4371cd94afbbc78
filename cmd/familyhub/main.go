// Package main is the entry point for the familyhub server.
//
// familyhub is a small HTTP endpoint on the home network that persists the
// family's datasets (finances, shopping, trips) as JSON files and triggers a
// sync after every write. Configuration is read from CLI flags, a .env file
// and an optional YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/familyhub/internal/config"
	"github.com/maruel/familyhub/internal/dataset"
	"github.com/maruel/familyhub/internal/server"
	"github.com/maruel/familyhub/internal/server/handlers"
	"github.com/maruel/familyhub/internal/server/ratelimit"
	"github.com/maruel/familyhub/internal/syncsvc"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "familyhub: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configSchema := flag.Bool("config-schema", false, "Print the JSON schema of the config file and exit")
	configPath := flag.String("config", "", "YAML config file (optional)")
	envPath := flag.String("env", ".env", "File holding FAMILYHUB_* variables (optional)")
	httpAddr := flag.String("http", "", "Address to listen on (e.g. 0.0.0.0:4747)")
	dataDir := flag.String("data-dir", "", "Directory holding the dataset files")
	secret := flag.String("secret", "", "Shared secret expected in the X-Argos-Key header")
	syncMode := flag.String("sync-mode", "", "Sync mode: script, git or none")
	syncScript := flag.String("sync-script", "", "Script run with bash after every write in script mode")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *configSchema {
		b, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	env, err := config.ReadDotEnv(*envPath)
	if err != nil {
		return err
	}
	// The data directory may hold its own .env; the -env file wins over it.
	dir := cfg.DataDir
	if v := env["FAMILYHUB_DATA_DIR"]; v != "" {
		dir = v
	}
	if set["data-dir"] {
		dir = *dataDir
	}
	if env, err = config.ReadDotEnv(*envPath, filepath.Join(dir, ".env")); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return err
	}

	// Explicit flags win over the .env files and the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP = *httpAddr
		case "data-dir":
			cfg.DataDir = *dataDir
		case "secret":
			cfg.Secret = *secret
		case "sync-mode":
			cfg.Sync.Mode = *syncMode
		case "sync-script":
			cfg.Sync.Script = *syncScript
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.LogLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	}
	port, err := cfg.Port()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	syncer, err := syncsvc.New(&cfg.Sync, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize sync: %w", err)
	}
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Requests > 0 {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
		defer limiter.Close()
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	registry := dataset.NewRegistry(cfg.DataDir)
	h := handlers.NewHandler(registry, syncer, port)
	httpServer := &http.Server{
		Handler: server.NewRouter(h, &server.Config{
			Secret:       cfg.Secret,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Limiter:      limiter,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind synchronously so a busy port fails the process right away.
	ln, err := net.Listen("tcp", cfg.HTTP)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP, err)
	}
	buildVersion, _, _, _ := getBuildInfo()
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", ln.Addr().String(), "data", cfg.DataDir, "datasets", registry.Names(), "sync", cfg.Sync.Mode, "version", buildVersion)
		serverErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("familyhub %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// watchExecutable calls stop when the current executable is rewritten, so a
// rebuilt binary can be restarted by its supervisor.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
