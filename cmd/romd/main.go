package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/snapshot-rom/internal/api"
	"github.com/yourusername/snapshot-rom/internal/config"
	"github.com/yourusername/snapshot-rom/internal/guardrail"
	"github.com/yourusername/snapshot-rom/internal/metrics"
	"github.com/yourusername/snapshot-rom/internal/storage"
	"github.com/yourusername/snapshot-rom/internal/watch"
	"github.com/yourusername/snapshot-rom/pkg/interp"
	"github.com/yourusername/snapshot-rom/pkg/reduction"
	"github.com/yourusername/snapshot-rom/pkg/rom"
	"github.com/yourusername/snapshot-rom/pkg/scaler"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", "", "address to listen on for metrics (overrides config)")
	verbose := flag.Bool("verbose", false, "log latent predictions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := cfg.Server.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics server listening on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Fatalf("Metrics server failed: %v", err)
			}
		}()
	}

	eng := &engine{cfg: cfg, verbose: *verbose}

	if cfg.Store.CSVPath != "" {
		params, snaps, err := loadCSV(cfg.Store.CSVPath, cfg.Store.ParameterDim)
		if err != nil {
			log.Fatalf("Failed to load training data: %v", err)
		}
		eng.loader = staticLoader(params, snaps)
		log.Printf("Loaded training data from %s", cfg.Store.CSVPath)
	} else {
		db, err := storage.NewPostgresDB(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		store, err := storage.NewSnapshotStore(db, cfg.Store.Table)
		if err != nil {
			log.Fatalf("Failed to open snapshot store: %v", err)
		}
		eng.loader = store.Load
		log.Printf("Using snapshot table %s", cfg.Store.Table)
	}

	if err := eng.Refit(context.Background()); err != nil {
		log.Fatalf("Initial fit failed: %v", err)
	}
	samples, rank := eng.stats()
	log.Printf("Surrogate model fitted on %d snapshots (latent rank %d)", samples, rank)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Watch.Enabled {
		if cfg.Store.CSVPath != "" {
			log.Fatalf("Watch requires a Postgres snapshot store, not a CSV file")
		}
		watcher := watch.NewWatcher(cfg.Watch, cfg.Database, cfg.Store.Table)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to start snapshot watcher: %v", err)
		}
		defer watcher.Stop()

		debounce, err := cfg.Watch.DebounceDuration()
		if err != nil {
			log.Fatalf("Invalid watch config: %v", err)
		}
		go eng.refitOnEvents(ctx, watcher.Events(), debounce)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng).Handler(),
	}
	go func() {
		log.Printf("Prediction server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Prediction server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Goodbye")
}

// engine owns the current surrogate model and serializes refits against
// predictions. The model types themselves are not concurrency-safe.
type engine struct {
	cfg     *config.Config
	loader  func(ctx context.Context) (*mat.Dense, *mat.Dense, error)
	verbose bool

	mu      sync.RWMutex
	model   *rom.ReducedOrderModel
	samples int
	rank    int
}

func (e *engine) Predict(query mat.Matrix) (*mat.Dense, error) {
	e.mu.RLock()
	model := e.model
	e.mu.RUnlock()

	pred, err := model.Predict(query)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.PredictionsTotal.WithLabelValues("success").Inc()
	return pred, nil
}

// Refit reloads the training data and swaps in a freshly fitted model.
func (e *engine) Refit(ctx context.Context) error {
	params, snaps, err := e.loader(ctx)
	if err != nil {
		metrics.FitsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("loading training data: %w", err)
	}

	rails := guardrail.NewShapeGuardrail(e.cfg.Guardrail)
	if err := rails.Validate(params, snaps); err != nil {
		metrics.FitsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("training data rejected: %w", err)
	}

	model, pod, err := buildModel(e.cfg.Model, params, snaps)
	if err != nil {
		metrics.FitsTotal.WithLabelValues("failure").Inc()
		return err
	}
	if e.verbose {
		model.LatentLog = log.Default()
	}

	n, _ := params.Dims()
	e.mu.Lock()
	e.model = model
	e.samples = n
	e.rank = pod.Rank()
	e.mu.Unlock()

	metrics.FitsTotal.WithLabelValues("success").Inc()
	metrics.TrainingSnapshots.Set(float64(n))
	metrics.LatentRank.Set(float64(pod.Rank()))
	return nil
}

func (e *engine) stats() (samples, rank int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samples, e.rank
}

// refitOnEvents debounces insert events and refits once the table settles.
func (e *engine) refitOnEvents(ctx context.Context, events <-chan watch.Event, debounce time.Duration) {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := 0

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			pending++
			log.Printf("New snapshot %s in %s", ev.ID, ev.Table)
			timer.Reset(debounce)

		case <-timer.C:
			log.Printf("Refitting on %d new snapshots...", pending)
			pending = 0
			if err := e.Refit(ctx); err != nil {
				log.Printf("Refit failed: %v", err)
				continue
			}
			samples, rank := e.stats()
			log.Printf("Model refitted on %d snapshots (latent rank %d)", samples, rank)

		case <-ctx.Done():
			return
		}
	}
}

// buildModel assembles scaler, reduction, and approximation from config and
// fits the surrogate.
func buildModel(cfg config.ModelConfig, params, snaps *mat.Dense) (*rom.ReducedOrderModel, *reduction.POD, error) {
	var opts []rom.DatabaseOption
	switch cfg.Scaler {
	case "minmax":
		opts = append(opts, rom.WithSnapshotScaler(scaler.NewMinMax()))
	case "standard":
		opts = append(opts, rom.WithSnapshotScaler(scaler.NewStandard()))
	case "", "none":
	default:
		return nil, nil, fmt.Errorf("unknown scaler type: %s", cfg.Scaler)
	}

	db, err := rom.NewDatabase(params, snaps, opts...)
	if err != nil {
		return nil, nil, err
	}

	var pod *reduction.POD
	if cfg.PODEnergy > 0 {
		pod = reduction.NewPODEnergy(cfg.PODEnergy)
	} else {
		pod = reduction.NewPOD(cfg.PODRank)
	}

	rbfOpts := []interp.Option{
		interp.WithSmoothing(cfg.Smoothing),
		interp.WithNeighbors(cfg.Neighbors),
	}
	if cfg.Kernel != "" {
		rbfOpts = append(rbfOpts, interp.WithKernel(cfg.Kernel))
	}
	if cfg.Epsilon > 0 {
		rbfOpts = append(rbfOpts, interp.WithEpsilon(cfg.Epsilon))
	}
	if cfg.Degree != nil {
		rbfOpts = append(rbfOpts, interp.WithDegree(*cfg.Degree))
	}

	model, err := rom.New(db, pod, interp.NewRBF(rbfOpts...)).Fit()
	if err != nil {
		return nil, nil, err
	}
	return model, pod, nil
}

func staticLoader(params, snaps *mat.Dense) func(context.Context) (*mat.Dense, *mat.Dense, error) {
	return func(context.Context) (*mat.Dense, *mat.Dense, error) {
		return params, snaps, nil
	}
}

// loadCSV reads rows of floats where the first paramDim columns are the
// parameter vector and the remainder the snapshot.
func loadCSV(path string, paramDim int) (*mat.Dense, *mat.Dense, error) {
	if paramDim <= 0 {
		return nil, nil, fmt.Errorf("store.parameter_dim must be positive for CSV data")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening training data: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading training data: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("training data %s is empty", path)
	}

	cols := len(records[0])
	if cols <= paramDim {
		return nil, nil, fmt.Errorf("rows have %d columns, need more than parameter_dim=%d", cols, paramDim)
	}

	var params, snaps []float64
	for i, row := range records {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		for j, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			if j < paramDim {
				params = append(params, v)
			} else {
				snaps = append(snaps, v)
			}
		}
	}

	n := len(records)
	return mat.NewDense(n, paramDim, params), mat.NewDense(n, cols-paramDim, snaps), nil
}
