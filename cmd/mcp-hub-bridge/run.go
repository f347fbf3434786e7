package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hubworks/mcp-hub/bridge"
	"github.com/michaelquigley/df/dl"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCommand().cmd)
}

type runCommand struct {
	args       []string
	env        []string
	workingDir string
	bind       string
	cmd        *cobra.Command
}

func newRunCommand() *runCommand {
	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "serve one stdio mcp server over http",
		Args:  cobra.ExactArgs(1),
	}
	command := &runCommand{cmd: cmd}
	cmd.Flags().StringArrayVar(&command.args, "args", nil, "argument to pass to the backend command (repeatable)")
	cmd.Flags().StringArrayVar(&command.env, "env", nil, "backend environment variable in KEY=VALUE form (repeatable)")
	cmd.Flags().StringVar(&command.workingDir, "working-dir", "", "working directory for the backend command")
	cmd.Flags().StringVar(&command.bind, "bind", "127.0.0.1:0", "address to listen on; the bound endpoint is printed to stdout")
	cmd.Run = command.run
	return command
}

func (c *runCommand) run(_ *cobra.Command, args []string) {
	command := args[0]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := make(map[string]string)
	for _, e := range c.env {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	cfg := &bridge.Config{
		Command:    command,
		Args:       c.args,
		Env:        env,
		WorkingDir: c.workingDir,
		Address:    c.bind,
	}

	b, err := bridge.New(cfg)
	if err != nil {
		dl.Fatalf("failed to create bridge: %v", err)
	}

	if err := b.Start(ctx); err != nil {
		dl.Fatalf("failed to start: %v", err)
	}
	defer b.Stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		dl.Fatalf(err)
	}
}
