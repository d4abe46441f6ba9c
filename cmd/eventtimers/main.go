package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	appLog "eventtimers/internal/log"
)

const version = "0.1.0"

// appFs is the filesystem every command reads and writes through.
var appFs afero.Fs = afero.NewOsFs()

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to config file",
		Value:  "/etc/eventtimers/config.yaml",
		EnvVar: "EVENTTIMERS_CONFIG",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "override the configured log level (debug, info, warn, error)",
	},
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "eventtimers"
	app.HelpName = "eventtimers"
	app.Usage = "reminders for recurring cyclic events"
	app.UsageText = "eventtimers [global options] <command> [arguments...]"
	app.Version = version
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler, HTTP API and catalog refresh",
			Action: runCmd,
			Flags:  runFlags,
		},
		{
			Name:    "upcoming",
			Aliases: []string{"u"},
			Usage:   "print the upcoming subscribed events once",
			Action:  upcomingCmd,
			Flags:   upcomingFlags,
		},
		{
			Name:      "next",
			Aliases:   []string{"n"},
			Usage:     "print the next occurrence of an event",
			ArgsUsage: "<Track/Event>",
			Action:    nextCmd,
		},
		{
			Name:   "export",
			Usage:  "write an iCalendar file of upcoming occurrences",
			Action: exportCmd,
			Flags:  exportFlags,
		},
		{
			Name:      "subscribe",
			Aliases:   []string{"s"},
			Usage:     "subscribe to events",
			ArgsUsage: "<Track/Event>...",
			Action:    subscribeCmd,
			Flags:     subscribeFlags,
		},
		{
			Name:      "unsubscribe",
			Usage:     "remove event subscriptions",
			ArgsUsage: "<Track/Event>...",
			Action:    unsubscribeCmd,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("eventtimers failed", err)
		os.Exit(1)
	}
}
