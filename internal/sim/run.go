// Package sim drives a complete two-phase commit run inside one process:
// clients submit transactions, a coordinator runs both phases against the
// participants, and every party records its protocol events in its own
// operation log under the run's log directory.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rodrigocitadin/tpc-audit/internal/metrics"
	"github.com/rodrigocitadin/tpc-audit/internal/store"
)

type Config struct {
	NumClients      uint32
	NumRequests     uint32
	NumParticipants uint32

	SendSuccessProbability      float64
	OperationSuccessProbability float64

	LogDir string
	// Seed makes the run reproducible. Zero seeds from the clock.
	Seed int64

	VoteTimeout    time.Duration
	StatusInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.VoteTimeout <= 0 {
		c.VoteTimeout = 500 * time.Millisecond
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = time.Second
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Summary is what the clients observed.
type Summary struct {
	RunID     uuid.UUID
	Seed      int64
	Committed int
	Aborted   int
	Unknown   int
}

// dice is a goroutine-safe source of biased coin flips.
type dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newDice(seed int64) *dice {
	return &dice{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))}
}

// roll returns true with probability p.
func (d *dice) roll(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < p
}

// Run performs one run and returns once every client has finished and the
// coordinator has shut down. Any operation log failure aborts the run.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Summary, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	summary := &Summary{RunID: uuid.New(), Seed: cfg.Seed}
	logger = logger.With(zap.String("component", "sim"), zap.Stringer("run_id", summary.RunID))
	logger.Info("Starting 2PC run",
		zap.Uint32("clients", cfg.NumClients),
		zap.Uint32("requests", cfg.NumRequests),
		zap.Uint32("participants", cfg.NumParticipants),
		zap.Int64("seed", cfg.Seed),
		zap.String("log_dir", cfg.LogDir))

	var logs []*store.OpLog
	defer func() {
		for _, l := range logs {
			l.Close()
		}
	}()
	handles := make(map[string]*store.Shared)
	open := func(name, label string) (*store.OpLog, error) {
		l, err := store.New(filepath.Join(cfg.LogDir, name), store.WithLogger(logger), store.WithMetrics(m))
		if err != nil {
			return nil, fmt.Errorf("open %s log: %w", label, err)
		}
		logs = append(logs, l)
		handles[label] = l.Handle()
		return l, nil
	}

	d := newDice(cfg.Seed)

	coordLog, err := open(store.CoordinatorLogName, CoordinatorID)
	if err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, cfg.NumParticipants)
	for i := range cfg.NumParticipants {
		l, err := open(store.ParticipantLogName(i), store.ParticipantLabel(i))
		if err != nil {
			return nil, err
		}
		peers = append(peers, newParticipant(i, l, d, cfg, logger))
	}

	requests := make(chan request)
	clients := make([]*client, 0, cfg.NumClients)
	for i := range cfg.NumClients {
		label := store.ClientLabel(i)
		l, err := open(store.ClientLogName(i), label)
		if err != nil {
			return nil, err
		}
		clients = append(clients, &client{
			label:       label,
			log:         l,
			requests:    requests,
			numRequests: cfg.NumRequests,
			logger:      logger.With(zap.String("client", label)),
		})
	}

	coord := &coordinator{
		log:      coordLog,
		peers:    peers,
		requests: requests,
		dice:     d,
		send:     cfg.SendSuccessProbability,
		timeout:  cfg.VoteTimeout,
		metrics:  m,
		logger:   logger.With(zap.String("role", CoordinatorID)),
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go monitor(monitorCtx, cfg.StatusInterval, handles, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.serve(gctx)
	})

	results := make([]outcomes, len(clients))
	g.Go(func() error {
		defer close(requests)
		cg, cctx := errgroup.WithContext(gctx)
		for i, c := range clients {
			cg.Go(func() error {
				out, err := c.run(cctx)
				results[i] = out
				if err != nil {
					return fmt.Errorf("%s: %w", c.label, err)
				}
				return nil
			})
		}
		return cg.Wait()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Run failed", zap.Error(err))
		return nil, err
	}

	for _, out := range results {
		summary.Committed += out.committed
		summary.Aborted += out.aborted
		summary.Unknown += out.unknown
	}
	logger.Info("Run finished",
		zap.Int("committed", summary.Committed),
		zap.Int("aborted", summary.Aborted),
		zap.Int("unknown", summary.Unknown))

	return summary, nil
}

// monitor periodically reports how many events each log holds.
func monitor(ctx context.Context, interval time.Duration, handles map[string]*store.Shared, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for label, h := range handles {
				counts := h.CountByKind()
				fields := make([]zap.Field, 0, len(counts)+1)
				fields = append(fields, zap.String("log", label))
				for kind, n := range counts {
					fields = append(fields, zap.Int(kind.String(), n))
				}
				logger.Debug("Log status", fields...)
			}
		case <-ctx.Done():
			return
		}
	}
}
