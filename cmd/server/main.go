package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/observability"
	"gardensim.ai/internal/persistence/archive"
	"gardensim.ai/internal/persistence/indexdb"
	persistlog "gardensim.ai/internal/persistence/log"
	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/tuning"
	"gardensim.ai/internal/sim/world"
	"gardensim.ai/internal/telemetry"
	"gardensim.ai/internal/transport/observer"
	"gardensim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "garden_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed override (fresh worlds only; 0 keeps the tuning seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tick/event rows, snapshot metadata, seed bank)")

		snapPath    = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest  = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		startPaused = flag.Bool("paused", false, "boot the world paused until a client sends RESUME")

		telemetryDir = flag.String("telemetry", "", "telemetry output directory (empty to disable csv output)")
		censusEvery  = flag.Uint64("census_every_ticks", 50, "ticks between telemetry census rows")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	// Optional: read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "garden.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshotPath(worldDir, idx, logger)
	}

	// Load tuning (required for fresh worlds; snapshot resumes carry the
	// effective tuning and tolerate a missing file).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	// Create world (fresh or resumed from snapshot).
	gen := flowergen.NewLocal()
	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		tune = snap.Params
		w, err = world.New(world.WorldConfig{ID: *worldID, Tune: tune, StartPaused: *startPaused}, cats, gen)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		w, err = world.New(world.WorldConfig{ID: *worldID, Tune: tune, StartPaused: *startPaused}, cats, gen)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	w.SetMetrics(metrics)

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	eventLog := persistlog.NewEventLogger(worldDir)
	defer tickLog.Close()
	defer eventLog.Close()
	tickSinks := multiTickLogger{a: tickLog}
	eventSinks := multiEventLogger{a: eventLog}
	if idx != nil {
		tickSinks.b = idx
		eventSinks.b = idx
	}
	w.SetTickLogger(tickSinks)
	w.SetEventLogger(eventSinks)

	// Snapshot writer. Banking rides this path so notable genomes land in
	// the seed bank exactly as often as snapshots land on disk.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	banker := newAutoBanker(idx, notableAttract)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				banker.BankNotable(snap, logger)
				if label, _, ok, err := archive.ArchiveSeasonSnapshot(worldDir, path, snap); err != nil {
					logger.Printf("season archive: %v", err)
				} else if ok {
					logger.Printf("archived %s at tick=%d", label, snap.Header.Tick)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	out, err := telemetry.NewOutputManager(strings.TrimSpace(*telemetryDir))
	if err != nil {
		logger.Fatalf("telemetry: %v", err)
	}
	if out != nil {
		defer out.Close()
		if err := out.WriteTuning(tune); err != nil {
			logger.Printf("telemetry: write tuning: %v", err)
		}
		go runCensus(ctx, w, out, *censusEvery, logger)
		logger.Printf("telemetry csv under %s", out.Dir())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	enableAdminHTTP := envBool("GS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("GS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string              `json:"world_id"`
				Tick    uint64              `json:"tick"`
				Index   *indexdb.IndexStats `json:"index,omitempty"`
			}{WorldID: *worldID, Tick: w.CurrentTick()}
			if idx != nil {
				st := idx.Stats()
				resp.Index = &st
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ack, err := requestSave(r.Context(), w, r.URL.Query().Get("label"))
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if !ack.Accepted {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": ack.ServerTick, "error": ack.Message})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": ack.ServerTick})
		})
		mux.HandleFunc("/admin/v1/seeds", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			if idx == nil {
				_ = json.NewEncoder(rw).Encode([]indexdb.SeedEntry{})
				return
			}
			seeds, err := idx.ListSeeds(50)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(rw).Encode(seeds)
		})
		mux.HandleFunc("/admin/v1/bootstrap", observer.NewServer(w).BootstrapHandler())
	} else {
		logger.Printf("admin endpoints disabled (GS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GS_ENABLE_PPROF_HTTP=false)")
	}

	var bank ws.SeedResolver
	if idx != nil {
		bank = seedBank{idx: idx}
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, bank, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Let the loop finish its tick before tearing down the factory workers.
	cancel()
	<-worldDone
	w.Close()
	if idx != nil {
		idx.Flush()
	}
}

// requestSave routes a SAVE through the control channel so the export runs
// between ticks like any client-issued save.
func requestSave(ctx context.Context, w *world.World, label string) (protocol.AckMsg, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp := make(chan protocol.AckMsg, 1)
	env := world.ControlEnvelope{
		SessionID: "admin",
		Msg: protocol.ControlMsg{
			Type:            protocol.TypeControl,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("admin-%d", time.Now().UnixNano()),
			Command:         protocol.CmdSave,
			SaveName:        label,
		},
		Resp: resp,
	}
	select {
	case w.Control() <- env:
	case <-ctx.Done():
		return protocol.AckMsg{}, fmt.Errorf("world busy: %w", ctx.Err())
	}
	select {
	case ack := <-resp:
		return ack, nil
	case <-ctx.Done():
		return protocol.AckMsg{}, fmt.Errorf("no ack: %w", ctx.Err())
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshotPath prefers the index's record and falls back to scanning
// the snapshots directory, so resumes survive a wiped or disabled index.
func latestSnapshotPath(worldDir string, idx *indexdb.SQLiteIndex, logger *log.Logger) string {
	if idx != nil {
		info, ok, err := idx.LatestSnapshot()
		if err != nil {
			logger.Printf("index: latest snapshot: %v", err)
		} else if ok {
			if _, statErr := os.Stat(info.Path); statErr == nil {
				return info.Path
			}
			logger.Printf("index points at missing snapshot %s; scanning directory", info.Path)
		}
	}
	return latestSnapshotFile(worldDir)
}

func latestSnapshotFile(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

func (m multiEventLogger) WriteEvent(ev protocol.NarrativeEvent) error {
	if m.a != nil {
		_ = m.a.WriteEvent(ev)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(ev)
	}
	return nil
}
