package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// set with -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "uantap",
		Usage:   "bridge Ethernet frames onto a UAN channel with one-byte addresses",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file name or `PATH`",
				EnvVars: []string{"UANTAP_CONFIG_FILE"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			upCommand,
			simCommand,
			logsCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
