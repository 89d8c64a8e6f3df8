// Package main runs the offline-first field-agent client: an interactive
// shell over the local store with background sync to the remote service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atinyakov/FarmCredit/internal/client/cli"
	"github.com/atinyakov/FarmCredit/internal/client/config"
	"github.com/atinyakov/FarmCredit/internal/client/connectivity"
	"github.com/atinyakov/FarmCredit/internal/client/remote"
	"github.com/atinyakov/FarmCredit/internal/client/service"
	"github.com/atinyakov/FarmCredit/internal/client/storage"
	"github.com/atinyakov/FarmCredit/internal/client/syncer"
	"github.com/atinyakov/FarmCredit/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	version   string
	buildDate string
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-version" {
		fmt.Printf("FarmCredit Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	ls, err := storage.Open(ctx, options.DBPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer ls.Close()

	httpClient, err := remote.NewHTTPClient(options.CAFile, options.RequestTimeout)
	if err != nil {
		return err
	}
	rc := remote.New(httpClient, options.ServerURL)

	monitor := connectivity.NewMonitor(false)
	prober := &connectivity.Prober{
		Checker:  rc,
		Monitor:  monitor,
		Interval: options.ProbeInterval,
		Timeout:  options.RequestTimeout,
		Logger:   zapLogger,
	}

	engine := syncer.NewEngine(ls, rc, monitor, zapLogger)
	scheduler := syncer.NewScheduler(engine, options.SyncInterval, monitor.Subscribe(), zapLogger)
	svc := service.New(ls, rc, engine, options.AgentID, zapLogger)

	shell := cli.New(svc, os.Stdin, os.Stdout)
	shell.Online = monitor.Online

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prober.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	// The shell blocks on stdin, so it is not part of the group: a signal
	// must stop the background work without waiting for input.
	shellDone := make(chan error, 1)
	go func() { shellDone <- shell.Run(ctx) }()

	var shellErr error
	select {
	case shellErr = <-shellDone:
	case <-ctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return shellErr
}
