package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/framelink/framelink-go/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "framelink-host",
		Usage:   "Framelink netplay session host daemon",
		Version: buildinfo.String(),
		Commands: []*cli.Command{
			serveCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print detailed build information",
		Action: func(c *cli.Context) error {
			info := buildinfo.Get()
			fmt.Fprintf(c.App.Writer, "framelink-host %s\ncommit:     %s\nbuilt:      %s\ngo version: %s\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion)
			return nil
		},
	}
}
