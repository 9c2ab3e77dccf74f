package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voltsys/batlog/internal"
	"github.com/voltsys/batlog/libraries/config"
	"github.com/voltsys/batlog/libraries/logger"
	"github.com/voltsys/batlog/libraries/server"
)

var Version = "dev"

var (
	productionCategories = []string{"startup", "poll", "sync", "nand", "store", "stream", "http"}
	debugCategories      = []string{"debug", "debug-sync", "debug-poll", "debug-store"}
	allCategories        = append(append([]string{}, productionCategories...), debugCategories...)
)

var acceptHTTP atomic.Bool

func main() {
	config.CheckVersion(Version)

	cfg := &internal.Config{}
	if err := config.Load(cfg, os.Args[1:]); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories(allCategories...)
	if cfg.Debug {
		logger.SetMinLevel(logger.LevelDebug)
		logger.SetCategoryFilter(nil)
	} else {
		logger.SetCategoryFilter(cfg.LogFilter)
	}

	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
		logger.Printf("startup", "Logging to file: %s", cfg.LogFile)
	}

	logger.Printf("startup", "batlogd %s starting...", Version)

	if cfg.NandCheck {
		logger.Printf("startup", "Running flash driver self-test...")
		if err := internal.RunNandCheck(); err != nil {
			logger.Fatal("Self-test failed: %v", err)
		}
		logger.Printf("startup", "Self-test passed")
		return
	}

	pollInterval, err := parseInterval(cfg.PollInterval)
	if err != nil {
		logger.Fatal("Invalid poll-interval %q: %v", cfg.PollInterval, err)
	}

	strategy := internal.SyncStrategy(cfg.SyncStrategy)
	if strategy != internal.StrategyTail && strategy != internal.StrategyWindow {
		logger.Fatal("Invalid sync-strategy %q (want tail or window)", cfg.SyncStrategy)
	}

	logger.Printf("startup", "Storage:")
	logger.Printf("startup", "  data-dir: %s", cfg.DataDir)
	if cfg.MetaDir != "" {
		logger.Printf("startup", "  meta-dir: %s", cfg.MetaDir)
	}
	logger.Printf("startup", "Sync:")
	logger.Printf("startup", "  poll-interval: %v", pollInterval)
	logger.Printf("startup", "  poll-workers: %d", cfg.PollWorkers)
	logger.Printf("startup", "  sync-strategy: %s", strategy)
	logger.Printf("startup", "  wrap-guard: %d", cfg.WrapGuard)
	if strategy == internal.StrategyWindow {
		logger.Printf("startup", "  window-size: %d", cfg.WindowSize)
	}
	logger.Printf("startup", "API:")
	if cfg.HTTPListen != "none" {
		logger.Printf("startup", "  http-listen: %s", cfg.HTTPListen)
	}
	if cfg.StreamListen != "none" {
		logger.Printf("startup", "  stream-listen: %s", cfg.StreamListen)
	}
	if cfg.MetricsListen != "none" {
		logger.Printf("startup", "  metrics-listen: %s", cfg.MetricsListen)
	}
	logger.Printf("startup", "Logging:")
	logger.Printf("startup", "  log-filter: %s", strings.Join(cfg.LogFilter, ", "))
	logger.Println("startup", "")

	if cfg.PprofPort != "" {
		go func() {
			addr := "localhost:" + cfg.PprofPort
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Printf("startup", "pprof server error: %v", err)
			}
		}()
	}

	logs, err := internal.NewLogStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to open log store: %v", err)
	}
	metaDir := cfg.MetaDir
	if metaDir == "" {
		metaDir = cfg.DataDir
	}
	meta, err := internal.NewMetaStore(metaDir)
	if err != nil {
		logger.Fatal("Failed to open metadata store: %v", err)
	}

	if cfg.Purge {
		logCount, err := logs.PurgeAll()
		if err != nil {
			logger.Fatal("Purge failed: %v", err)
		}
		metaCount, err := meta.PurgeAll()
		if err != nil {
			logger.Fatal("Purge failed: %v", err)
		}
		logger.Printf("startup", "Purged %d logs, %d metadata records", logCount, metaCount)
		return
	}

	if cfg.ExportSerial != "" {
		path := cfg.ExportSerial + ".blx"
		count, err := internal.ExportLogFile(logs, cfg.ExportSerial, path)
		if err != nil {
			logger.Fatal("Export failed: %v", err)
		}
		logger.Printf("startup", "Exported %d records to %s", count, path)
		return
	}

	if cfg.ImportFile != "" {
		if cfg.ImportSerial == "" {
			logger.Fatal("--import requires --import-serial")
		}
		count, err := internal.ImportLogFile(logs, meta, cfg.ImportSerial, cfg.ImportFile)
		if err != nil {
			logger.Fatal("Import failed: %v", err)
		}
		logger.Printf("startup", "Imported %d records for %s", count, cfg.ImportSerial)
		return
	}

	info, err := logs.Info()
	if err != nil {
		logger.Fatal("Failed to scan log store: %v", err)
	}
	logger.Printf("startup", "Store state: %d devices, %s records, %s",
		info.Devices, logger.FormatCount(int64(info.Records)), logger.FormatBytes(info.TotalBytes))

	engine := internal.NewSyncEngine(logs, meta, internal.SyncConfig{
		Strategy:   strategy,
		WrapGuard:  uint32(cfg.WrapGuard),
		WindowSize: cfg.WindowSize,
	})

	broadcaster := internal.NewRecordBroadcaster()
	engine.SetBroadcaster(broadcaster)

	var streamServer *internal.StreamServer
	if cfg.StreamListen != "none" {
		streamServer = internal.NewStreamServer(broadcaster, cfg.StreamMaxClients,
			time.Duration(cfg.StreamHeartbeatInterval)*time.Second)
		streamServer.Listen(cfg.StreamListen)
	}

	var poller *internal.Poller
	if cfg.Sim {
		source := internal.NewSimSource(internal.SimSourceConfig{
			Serials:        cfg.SimSerials,
			RingSize:       cfg.SimRingSize,
			RecordsPerPoll: cfg.SimRecordsPoll,
		})
		logger.Printf("startup", "Telemetry source: simulated fleet (%d devices, ring %d)",
			len(cfg.SimSerials), cfg.SimRingSize)
		poller = internal.NewPoller(source, engine, internal.PollerConfig{
			Interval:   pollInterval,
			Workers:    cfg.PollWorkers,
			RatePerSec: float64(cfg.PollRate),
		})
		poller.Start()
	} else {
		logger.Printf("startup", "No telemetry source configured (serving stored data only; use --sim for the simulated fleet)")
	}

	started := time.Now()
	acceptHTTP.Store(true)

	rpcMux := http.NewServeMux()
	rpcMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handleRPC(started, logs, meta, poller, broadcaster, w, r)
	})
	httpServer := &http.Server{Handler: rpcMux}

	if cfg.HTTPListen != "none" {
		listener := server.SocketListen(cfg.HTTPListen)
		go httpServer.Serve(listener)
	}

	if cfg.MetricsListen != "none" && cfg.MetricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsListener := server.SocketListen(cfg.MetricsListen)
		go func() {
			if err := http.Serve(metricsListener, metricsMux); err != nil {
				logger.Printf("startup", "metrics server failed: %v", err)
			}
		}()
		logger.Printf("startup", "Metrics server listening on %s", cfg.MetricsListen)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Printf("startup", "Service running. Press Ctrl+C to stop.")
	<-sigChan

	logger.Printf("startup", "Shutting down...")
	acceptHTTP.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)

	if poller != nil {
		poller.Stop()
	}
	if streamServer != nil {
		streamServer.Close()
	}
	broadcaster.Close()

	logger.Printf("startup", "Shutdown complete")
}

// parseInterval accepts bare seconds ("30") or duration syntax ("500ms").
func parseInterval(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func handleRPC(
	started time.Time,
	logs *internal.LogStore,
	meta *internal.MetaStore,
	poller *internal.Poller,
	broadcaster *internal.RecordBroadcaster,
	w http.ResponseWriter,
	r *http.Request,
) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Printf("http", "Recovered from panic in RPC handler: %v", rec)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()

	if !acceptHTTP.Load() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	path := r.URL.Path

	switch {
	case path == "/status" || path == "/":
		internal.HandleStatus(Version, started, logs, poller, broadcaster, w, r)
	case path == "/devices":
		internal.HandleDevices(logs, meta, w, r)
	case strings.HasPrefix(path, "/device/") && strings.HasSuffix(path, "/log"):
		if serial, ok := internal.DeviceSerialFromPath(path, "/log"); ok {
			internal.HandleDeviceLog(logs, serial, w, r)
			return
		}
		http.Error(w, "invalid serial", http.StatusBadRequest)
	case strings.HasPrefix(path, "/device/") && strings.HasSuffix(path, "/report"):
		if serial, ok := internal.DeviceSerialFromPath(path, "/report"); ok {
			internal.HandleDeviceReport(logs, serial, w, r)
			return
		}
		http.Error(w, "invalid serial", http.StatusBadRequest)
	case strings.HasPrefix(path, "/device/") && strings.HasSuffix(path, "/export"):
		if serial, ok := internal.DeviceSerialFromPath(path, "/export"); ok {
			internal.HandleDeviceExport(logs, serial, w, r)
			return
		}
		http.Error(w, "invalid serial", http.StatusBadRequest)
	default:
		http.Error(w, "Unknown endpoint: "+path, http.StatusNotFound)
	}
}
