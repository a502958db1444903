// Command ais-replay runs the AIS anomaly detection service: it serves the
// replay control API (start/stop/status/stream) over HTTP and runs the
// periodic cooldown cleanup loop until terminated.
//
// Usage:
//
//	go run ./cmd/ais-replay [flags]
//
// Flags:
//
//	-config   Path to a JSON config file overriding detection thresholds
//	          and service options (optional)
//	-addr     Listen address, overrides config/default if set
//	-data-dir Directory replay-start paths must resolve within, overrides
//	          config/default if set
//	-db       Path to the SQLite database file (default: ais.db)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisais/detector/internal/ais/cleanup"
	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/aisdb"
	"github.com/aegisais/detector/internal/controlsurface"
	"github.com/aegisais/detector/internal/monitoring"
	"github.com/aegisais/detector/internal/timeutil"
	"github.com/aegisais/detector/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config file (optional)")
	addr := flag.String("addr", "", "Listen address, overrides config/default")
	dataDir := flag.String("data-dir", "", "Directory replay-start paths must resolve within")
	dbPath := flag.String("db", "ais.db", "Path to the SQLite database file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("ais-replay v%s (git SHA: %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		os.Exit(0)
	}

	cfg := aisconfig.Empty()
	if *configPath != "" {
		loaded, err := aisconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.ListenAddr = addr
	}
	if *dataDir != "" {
		cfg.DataDir = dataDir
	}

	monitoring.SetLogger(log.Printf)
	log.Printf("ais-replay v%s (git SHA: %s)", version.Version, version.GitSHA)

	db, err := aisdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database %s: %v", *dbPath, err)
	}
	defer db.Close()

	clock := timeutil.RealClock{}
	server := controlsurface.New(cfg, db, clock)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maxAge := time.Duration(cfg.GetCooldownPurgeMaxAgeDays()) * 24 * time.Hour
	go cleanup.Run(ctx, clock, cfg.GetCooldownPurgeInterval(), maxAge, server.Cooldowns(), db)

	listenAddr := cfg.GetListenAddr()
	httpServer := &http.Server{Addr: listenAddr, Handler: server.Mux()}

	log.Printf("ais-replay listening on %s (data dir: %s, db: %s)", listenAddr, cfg.GetDataDir(), *dbPath)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
