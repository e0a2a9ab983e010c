package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/llamactl"
)

// instantExitEnv skips the graceful cleanup on the first signal.
const instantExitEnv = "LLAMA_OS_INSTANT_EXIT"

type cleaner interface {
	CleanupAll(ctx context.Context) int
	ForceCleanupAll() bool
}

type shutdownOptions struct {
	Timeout     time.Duration
	Grace       time.Duration
	InstantExit bool
}

// shutdown stops every managed process after the first signal. A second
// signal arriving during the graceful phase escalates to a forced kill.
func shutdown(c cleaner, sigs <-chan os.Signal, opts shutdownOptions, out io.Writer) {
	if opts.InstantExit {
		_, _ = fmt.Fprintln(out, "instant exit: force killing model servers")
		c.ForceCleanupAll()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- c.CleanupAll(ctx) }()

	select {
	case n := <-done:
		_, _ = fmt.Fprintf(out, "stopped %d model server(s)\n", n)
	case <-sigs:
		_, _ = fmt.Fprintln(out, "second signal: force killing model servers")
		cancel()
		c.ForceCleanupAll()
		return
	}

	if opts.Grace <= 0 {
		return
	}
	select {
	case <-time.After(opts.Grace):
	case <-sigs:
		c.ForceCleanupAll()
	}
}

func runServe(configPath string, flags ServeFlags, out io.Writer) error {
	cfg, err := llamactl.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	d, err := llamactl.NewDaemon(cfg, nil)
	if err != nil {
		return err
	}
	metricsSrv, err := d.ServeMetrics()
	if err != nil {
		_ = d.Close()
		return err
	}
	apiSrv, err := d.Serve()
	if err != nil {
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		_ = d.Close()
		return err
	}
	protocol := "HTTP"
	if cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
	}
	_, _ = fmt.Fprintf(out, "Starting llamactl %s server on %s%s\n", protocol, cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh

	_, _ = fmt.Fprintln(out, "Shutting down...")
	_, instant := os.LookupEnv(instantExitEnv)
	shutdown(d.Manager, sigCh, shutdownOptions{
		Timeout:     flags.CleanupTimeout,
		Grace:       cfg.ShutdownGrace,
		InstantExit: instant,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := []error{apiSrv.Shutdown(ctx)}
	if metricsSrv != nil {
		errs = append(errs, metricsSrv.Shutdown(ctx))
	}
	errs = append(errs, d.Close())
	return errors.Join(errs...)
}
