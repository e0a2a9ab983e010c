package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/llamactl/pkg/client"
)

// command runs the remote subcommands against a daemon.
type command struct {
	api *APIFlags
	out io.Writer
}

func (c command) client() (*client.Client, error) { return newAPIClient(c.api) }

func (c command) Launch(ctx context.Context, f LaunchFlags, external bool) error {
	if f.ModelPath == "" {
		return errors.New("--model is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	var res client.LaunchResult
	if external {
		res, err = cl.LaunchExternal(ctx, f.ModelPath)
	} else {
		res, err = cl.Launch(ctx, f.ModelPath)
	}
	if err != nil {
		return err
	}
	return printJSON(c.out, res)
}

func (c command) List(ctx context.Context) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ps, err := cl.List(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, ps)
}

// Logs prints new output lines. With Follow it keeps polling until the
// process stops or ctx is done.
func (c command) Logs(ctx context.Context, f LogsFlags) error {
	if f.ID == "" {
		return errors.New("--id is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	interval := f.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		out, err := cl.Output(ctx, f.ID)
		if err != nil {
			return err
		}
		for _, l := range out.Lines {
			if _, err := fmt.Fprintln(c.out, l); err != nil {
				return err
			}
		}
		if !f.Follow || !out.IsRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c command) Kill(ctx context.Context, f IDFlags) error {
	if f.ID == "" {
		return errors.New("--id is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.Terminate(ctx, f.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "terminated %s\n", f.ID)
	return err
}

func (c command) Remove(ctx context.Context, f IDFlags) error {
	if f.ID == "" {
		return errors.New("--id is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.Remove(ctx, f.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "removed %s\n", f.ID)
	return err
}

func (c command) Cleanup(ctx context.Context) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	n, err := cl.Cleanup(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "stopped %d process(es)\n", n)
	return err
}

func (c command) Versions(ctx context.Context) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	vs, err := cl.Versions(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, vs)
}

func (c command) UseVersion(ctx context.Context, f VersionFlags) error {
	if f.Path == "" {
		return errors.New("--path is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.ActivateVersion(ctx, f.Path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "active version: %s\n", f.Path)
	return err
}

func (c command) DeleteVersion(ctx context.Context, f VersionFlags) error {
	if f.Path == "" {
		return errors.New("--path is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	if err := cl.DeleteVersion(ctx, f.Path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "deleted version: %s\n", f.Path)
	return err
}

func (c command) GetModel(ctx context.Context, f ModelFlags) error {
	if f.Path == "" {
		return errors.New("--path is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	ms, err := cl.ModelSettings(ctx, f.Path)
	if err != nil {
		return err
	}
	return printJSON(c.out, ms)
}

// SetModel updates only the fields whose flags were given.
func (c command) SetModel(ctx context.Context, f ModelFlags, changed func(string) bool) error {
	if f.Path == "" {
		return errors.New("--path is required")
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	ms, err := cl.ModelSettings(ctx, f.Path)
	if err != nil {
		return err
	}
	if changed("args") {
		ms.CustomArgs = f.Args
	}
	if changed("host") {
		ms.ServerHost = f.Host
	}
	if changed("port") {
		ms.ServerPort = f.Port
	}
	if changed("env") {
		ms.Env = f.Env
	}
	ms, err = cl.SetModelSettings(ctx, ms)
	if err != nil {
		return err
	}
	return printJSON(c.out, ms)
}

// with directs output to the cobra command's writer.
func (c command) with(cmd *cobra.Command) command {
	c.out = cmd.OutOrStdout()
	return c
}
