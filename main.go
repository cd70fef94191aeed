package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rodrigocitadin/tpc-audit/internal/checker"
	"github.com/rodrigocitadin/tpc-audit/internal/config"
	"github.com/rodrigocitadin/tpc-audit/internal/logger"
	"github.com/rodrigocitadin/tpc-audit/internal/metrics"
	"github.com/rodrigocitadin/tpc-audit/internal/sim"
)

const (
	exitOK         = 0
	exitViolations = 1
	exitFailure    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	log, err := logger.New(logger.Config{
		Level:  logger.LevelForVerbosity(opts.Verbosity),
		Format: opts.LogFormat,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	if opts.Mode == config.ModeRun {
		summary, err := sim.Run(ctx, sim.Config{
			NumClients:                  opts.NumClients,
			NumRequests:                 opts.NumRequests,
			NumParticipants:             opts.NumParticipants,
			SendSuccessProbability:      opts.SendSuccessProbability,
			OperationSuccessProbability: opts.OperationSuccessProbability,
			LogDir:                      opts.LogPath,
			Seed:                        opts.Seed,
		}, log, m)
		if err != nil {
			fmt.Fprintf(stderr, "run failed: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "run %s (seed %d): %d committed, %d aborted, %d unknown\n",
			summary.RunID, summary.Seed, summary.Committed, summary.Aborted, summary.Unknown)
	}

	report, err := checker.New(log, m).CheckLastRun(checker.Run{
		NumClients:      opts.NumClients,
		NumRequests:     opts.NumRequests,
		NumParticipants: opts.NumParticipants,
		LogDir:          opts.LogPath,
	})
	if err != nil {
		fmt.Fprintf(stderr, "check failed: %v\n", err)
		return exitFailure
	}

	if _, err := report.WriteTo(stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if !report.OK() {
		fmt.Fprintf(stderr, "%d invariant violation(s)\n", len(report.Violations()))
		return exitViolations
	}
	return exitOK
}
