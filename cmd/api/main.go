package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ongsolidaria/backoffice/internal/auth"
	"github.com/ongsolidaria/backoffice/internal/httpapi"
	"github.com/ongsolidaria/backoffice/internal/mailer"
	"github.com/ongsolidaria/backoffice/internal/obs"
	"github.com/ongsolidaria/backoffice/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("BACKOFFICE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing BACKOFFICE_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	svc, err := auth.NewService(store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var sender auth.Mailer
	if host := os.Getenv("BACKOFFICE_SMTP_HOST"); host != "" {
		port, err := strconv.Atoi(envOr("BACKOFFICE_SMTP_PORT", "587"))
		if err != nil {
			log.Fatalf("invalid BACKOFFICE_SMTP_PORT: %v", err)
		}
		sender = mailer.NewSMTPSender(
			host,
			port,
			os.Getenv("BACKOFFICE_SMTP_FROM"),
			os.Getenv("BACKOFFICE_SMTP_USER"),
			os.Getenv("BACKOFFICE_SMTP_PASS"),
			os.Getenv("BACKOFFICE_RESET_URL"),
		)
	} else {
		log.Print("SMTP not configured; reset tokens will not be delivered")
	}

	recovery, err := auth.NewRecovery(store, sender)
	if err != nil {
		log.Fatalf("recovery: %v", err)
	}

	// hourly sweep of expired reset tokens
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				if n, err := recovery.PurgeExpired(purgeCtx); err != nil {
					obs.LogRequest(map[string]any{
						"level": "error",
						"msg":   "reset token purge failed",
						"error": err.Error(),
					})
				} else if n > 0 {
					obs.LogRequest(map[string]any{
						"level":  "info",
						"msg":    "expired reset tokens purged",
						"purged": n,
					})
				}
			}
		}
	}()

	api := httpapi.New(svc, recovery, httpapi.ReadyProbe{DB: store.DB()}, version)

	srv := &http.Server{
		Addr:              envOr("BACKOFFICE_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting backoffice-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	purgeCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
