package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/hubworks/mcp-hub/relay"
	"github.com/michaelquigley/df/dl"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConnectCommand().cmd)
}

type connectCommand struct {
	transport    string
	bind         string
	stateless    bool
	jsonResponse bool
	cmd          *cobra.Command
}

func newConnectCommand() *connectCommand {
	cmd := &cobra.Command{
		Use:   "connect <endpoint>",
		Short: "connect to a remote hub or bridge and re-serve it on stdio",
		Args:  cobra.ExactArgs(1),
	}
	command := &connectCommand{cmd: cmd}
	cmd.Flags().StringVar(&command.transport, "transport", "http", "remote transport: 'http' or 'sse'")
	cmd.Flags().StringVar(&command.bind, "bind", "", "re-serve over http on this address instead of stdio")
	cmd.Flags().BoolVar(&command.stateless, "stateless", false, "run the http server in stateless mode")
	cmd.Flags().BoolVar(&command.jsonResponse, "json-response", false, "prefer json responses over sse")
	cmd.Run = command.run
	return command
}

func (cmd *connectCommand) run(_ *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, err := relay.New(&relay.Config{Endpoint: args[0], Transport: cmd.transport})
	if err != nil {
		dl.Fatalf("failed to create relay: %v", err)
	}

	if err := r.Start(ctx); err != nil {
		dl.Fatalf("failed to start: %v", err)
	}
	defer r.Stop()

	if cmd.bind != "" {
		opts := &relay.HTTPOptions{
			Address:      cmd.bind,
			Stateless:    cmd.stateless,
			JSONResponse: cmd.jsonResponse,
		}
		if err := r.RunHTTP(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
			dl.Fatalf(err)
		}
		return
	}

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		dl.Fatalf(err)
	}
}
