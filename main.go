package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"perfmon/apperr"
	"perfmon/collector"
	"perfmon/config"
	"perfmon/logger"
	"perfmon/optimizer"
	"perfmon/service"
)

const (
	modeVerify  = "verify"
	modeDefault = "default"
	modeCheck   = "check"
)

// Exit codes.
const (
	exitOK     = 0
	exitSetup  = 1 // store cannot be opened or configuration is invalid
	exitFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("perfmon", pflag.ContinueOnError)
	mode := fs.String("mode", modeDefault, "verify|default|check")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitSetup
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(out, "Error loading config:", err)
		return exitSetup
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(out, "Error setting up logger:", err)
		return exitSetup
	}
	defer logger.Flush(log.Logger)

	if !validMode(*mode) {
		log.Logger.Error("unknown mode", zap.String("mode", *mode))
		return exitSetup
	}

	var opts []service.Option
	if *mode == modeDefault {
		opts = append(opts, service.WithProgress(func(p optimizer.Progress) {
			fmt.Fprintf(out, "  [%3d%%] %s (%d/%d)\n", p.Percent, p.Phase, p.Index, p.Total)
		}))
	}

	svc, err := service.New(cfg, log.Logger, opts...)
	if err != nil {
		log.Logger.Error("startup failed", zap.Error(err))
		return exitSetup
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Logger.Info("perfmon started", zap.String("mode", *mode), zap.String("store", cfg.DBPath()))

	switch *mode {
	case modeCheck:
		sample, report, err := svc.CheckOnce(ctx)
		if err != nil {
			log.Logger.Error("single check failed", zap.Error(err))
			return exitFailed
		}
		printSample(out, sample, report)

	case modeVerify, modeDefault:
		res, err := svc.VerifyContinuousOperation(ctx, cfg.Window)
		if err != nil {
			log.Logger.Error("continuous operation check failed", zap.Error(err))
			return exitFailed
		}
		fmt.Fprintf(out, "Continuous operation: %d samples in %s (success=%t)\n", res.Samples, res.Window, res.Success)
		if !res.Success {
			return exitFailed
		}
		if *mode == modeVerify {
			return exitOK
		}

		fmt.Fprintln(out, "Optimization:")
		sum, err := svc.Optimize(ctx)
		if sum == nil {
			log.Logger.Error("optimization failed", zap.Error(err))
			return exitFailed
		}
		printSummary(out, sum)
		if err != nil && !errors.Is(err, apperr.ErrStorageWrite) {
			return exitFailed
		}
	}
	return exitOK
}

func validMode(m string) bool {
	return m == modeVerify || m == modeDefault || m == modeCheck
}

func printSample(out io.Writer, s *collector.MetricSample, r *collector.HealthReport) {
	fmt.Fprintf(out, "Health score: %.2f/100 (%s)\n", s.HealthScore, r.Overall)
	fmt.Fprintf(out, "  CPU:         %6.1f%% %s\n", s.CPUPercent, r.CPU)
	fmt.Fprintf(out, "  Memory:      %6.1f%% %s\n", s.MemoryPercent, r.Memory)
	fmt.Fprintf(out, "  Disk:        %6.1f%% %s\n", s.DiskPercent, r.Disk)
	fmt.Fprintf(out, "  Network I/O: %s %s\n", humanize.Bytes(s.NetworkIOBytes), r.Network)
	fmt.Fprintf(out, "  Processes:   %s\n", humanize.Comma(int64(s.ProcessCount)))
	fmt.Fprintf(out, "  Data stores: %d %s\n", s.DatabaseConnections, r.DataStores)
	for i, rec := range r.Recommendations {
		fmt.Fprintf(out, "  %d. %s\n", i+1, rec)
	}
}

func printSummary(out io.Writer, s *optimizer.OptimizationSummary) {
	fmt.Fprintf(out, "Optimization %s: %d phases in %.2fs\n", s.OptimizationID, s.PhasesCompleted, s.DurationSeconds)
	fmt.Fprintf(out, "  Efficiency %.1f%% -> %.1f%% (%+.1f)\n", s.InitialEfficiency, s.FinalEfficiency, s.Improvement)
}
