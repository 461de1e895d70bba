package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/palmtrace/internal/app"
	"github.com/ayusman/palmtrace/internal/config"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Server.StaticDir != "" {
		log.Info("serving static files", "dir", cfg.Server.StaticDir)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to start", "error", err)
	}
	log.Info("encoder selected", "backend", a.Encoder())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	if cfg.Tray.Enabled {
		t := tray.New(openURL(cfg), func() (bool, string) {
			p, ok := a.Analyzer().Current()
			if !ok {
				return false, ""
			}
			return true, fmt.Sprintf("%s (%.0f%%)", p.Video, p.Fraction*100)
		}, time.Second, log)
		t.OnQuit(stop)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine.
		t.Run()
	}

	err = <-errCh
	if cerr := a.Close(); cerr != nil {
		log.Error("shutdown failed", "error", cerr)
	}
	if err != nil {
		log.Fatal("server failed", "error", err)
	}
}

// openURL is the address the tray opens in the browser.
func openURL(cfg *config.Config) string {
	if cfg.Tray.OpenURL != "" {
		return cfg.Tray.OpenURL
	}
	host, port, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.palmtrace/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".palmtrace", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
