package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/logging"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/server"
)

const usage = `Usage: larder [command]

Commands:
  (none)                   run the server
  restore -key K -out F    download and decrypt a backup snapshot into F
  vapid-keys               print a new VAPID key pair for web push

Configuration is read from .env and LARDER_* environment variables.
`

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:], cfg, logger); err != nil {
			logger.Error(os.Args[1]+" failed", "error", err)
			os.Exit(1)
		}
		return
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(cleanupCtx); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go srv.Backups().Run(cleanupCtx)
	if n := srv.Notifier(); n != nil {
		go n.Run(cleanupCtx)
	}

	go func() {
		logger.Info("larder starting", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func runCommand(name string, args []string, cfg *config.Config, logger *slog.Logger) error {
	switch name {
	case "restore":
		return restore(args, cfg, logger)
	case "vapid-keys":
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Printf("LARDER_VAPID_PUBLIC_KEY=%s\nLARDER_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", name)
}

// restore writes a decrypted snapshot to a new file. It refuses to overwrite
// an existing file so a running database is never clobbered.
func restore(args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	key := fs.String("key", "", "object key of the snapshot, with or without the prefix")
	out := fs.String("out", "", "path of the database file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" || *out == "" {
		fs.Usage()
		return errors.New("-key and -out are required")
	}

	m := backup.NewManager(cfg.Backup, nil, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	data, err := m.Fetch(ctx, *key)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("snapshot restored", "key", *key, "path", *out, "bytes", len(data))
	return nil
}
