package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/hubworks/mcp-hub/hub"
	"github.com/michaelquigley/df/dl"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCommand().cmd)
}

type runCommand struct {
	cmd *cobra.Command
}

func newRunCommand() *runCommand {
	cmd := &cobra.Command{
		Use:   "run <config.yml>",
		Short: "serve the hub on stdio",
		Args:  cobra.ExactArgs(1),
	}
	command := &runCommand{cmd: cmd}
	cmd.Run = command.run
	return command
}

func (cmd *runCommand) run(_ *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := hub.NewFromFile(args[0])
	if err != nil {
		dl.Fatalf("failed to create hub: %v", err)
	}

	if err := h.Start(ctx); err != nil {
		dl.Fatalf("failed to start: %v", err)
	}
	defer h.Stop()

	if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		dl.Fatalf(err)
	}
}
