package main

import (
	"github.com/hubworks/mcp-hub/build"
	"github.com/michaelquigley/df/dl"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "mcp-hub",
	Short:   "Aggregate multiple MCP servers behind a single hub",
	Version: build.String(),
}

func main() {
	dl.Init(dl.DefaultOptions().SetTrimPrefix("github.com/hubworks/"))
	if err := rootCmd.Execute(); err != nil {
		dl.Fatalf(err)
	}
}
