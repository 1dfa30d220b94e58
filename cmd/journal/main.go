// Package main prints the recent realtime event journal of a campaign.
package main

import (
	"context"
	"flag"
	"os"

	journalcmd "github.com/kindfund/campaignsync/internal/cmd/journal"
	"github.com/kindfund/campaignsync/internal/platform/config"
)

func main() {
	cfg, err := journalcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	if err := journalcmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
