package main

import (
	"github.com/michaelquigley/df/dl"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-hub-bridge",
	Short: "expose a local stdio mcp server over http",
}

func main() {
	dl.Init(dl.DefaultOptions().SetTrimPrefix("github.com/hubworks/"))
	if err := rootCmd.Execute(); err != nil {
		dl.Fatalf(err)
	}
}
