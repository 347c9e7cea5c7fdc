package scanworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"facescan/internal/config"
	"facescan/internal/ipc"
	"facescan/internal/ledger"
	"facescan/internal/logging"
	"facescan/internal/pipeline"
	"facescan/internal/services"
)

// Scope is a ledger connection owned by one worklist generation.
type Scope interface {
	pipeline.Ledger
	UnscannedItems(ctx context.Context, includeRemovable bool) ([]ledger.MediaItem, error)
	ItemsByPath(ctx context.Context, path string, includeRemovable bool) ([]ledger.MediaItem, error)
	Close() error
}

// Opener opens a scoped ledger connection.
type Opener func(ctx context.Context) (Scope, error)

// Processor runs the per-item pipeline.
type Processor interface {
	Process(ctx context.Context, l pipeline.Ledger, item ledger.MediaItem) (pipeline.Result, error)
}

// MountChecker reports whether removable storage is currently mounted.
type MountChecker interface {
	Mounted() bool
}

// Sender delivers a frame to the server endpoint.
type Sender func(ctx context.Context, m ipc.Message) error

// Dependencies are the worker's collaborators. Nil fields get production
// defaults derived from the config.
type Dependencies struct {
	Open   Opener
	Step   Processor
	Mounts MountChecker
	Send   Sender
}

// State is the worker's scheduling state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRunning
	StateDrained
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateDrained:
		return "drained"
	default:
		return "idle"
	}
}

// Worker is the scan worker loop. All fields below the collaborators are owned
// by the goroutine executing Run.
type Worker struct {
	listenPath string
	interval   time.Duration
	limiter    *rate.Limiter

	open   Opener
	step   Processor
	mounts MountChecker
	send   Sender
	logger *slog.Logger

	state  State
	all    worklist
	single worklist
	scope  Scope
	allUID uint32
	gen    generation

	rescanPending bool
	rescanUID     uint32
	cancelAll     bool

	killed     bool
	killUID    uint32
	quit       bool
	quiesce    *time.Ticker
	terminated bool
}

// generation accumulates results for one SCAN_ALL worklist.
type generation struct {
	started time.Time
	total   int
	scanned int
	faces   int
	failed  int
	skipped int
}

// New builds a worker from cfg and deps.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Worker {
	endpoints := cfg.Endpoints()
	listenPath, _ := endpoints.Lookup(ipc.PortWorker)
	serverPath, _ := endpoints.Lookup(ipc.PortServer)

	w := &Worker{
		listenPath: listenPath,
		interval:   cfg.QuiescenceInterval(),
		open:       deps.Open,
		step:       deps.Step,
		mounts:     deps.Mounts,
		send:       deps.Send,
		logger:     logging.NewComponentLogger(logger, "worker"),
	}
	if cfg.Scan.MaxItemsPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.Scan.MaxItemsPerSecond), 1)
	}
	if w.open == nil {
		catalog := cfg.CatalogPath()
		w.open = func(ctx context.Context) (Scope, error) {
			l, err := ledger.Connect(ctx, catalog)
			if err != nil {
				return nil, err
			}
			return l, nil
		}
	}
	if w.step == nil {
		w.step = pipeline.New(nil, nil, nil, pipeline.Options{
			OptimizeDecode: cfg.Scan.OptimizeDecode,
			ExtractColor:   cfg.Scan.ExtractColor,
		}, logger)
	}
	if w.send == nil {
		w.send = func(ctx context.Context, m ipc.Message) error {
			return ipc.Send(ctx, serverPath, m)
		}
	}
	return w
}

// Run attaches the worker listener, calls ready, and runs the loop until the
// worker quits after KILL_SERVICE or ctx ends.
func (w *Worker) Run(ctx context.Context, ready func() error) error {
	if w.listenPath == "" {
		return services.Wrap(services.ErrConfiguration, "worker", "listen", "worker endpoint not configured", nil)
	}
	listener, err := ipc.Listen(ctx, w.listenPath)
	if err != nil {
		return err
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	inbound := make(chan ipc.Inbound, 16)
	go ipc.Serve(serveCtx, listener, ipc.PortWorker, inbound, w.logger)

	if ready != nil {
		if err := ready(); err != nil {
			return fmt.Errorf("post readiness: %w", err)
		}
	}
	w.logger.Info("scan worker listening", logging.String("socket", w.listenPath))
	return w.loop(ctx, inbound)
}
