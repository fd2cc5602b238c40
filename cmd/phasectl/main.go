package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/kirillkom/phase-edms/internal/bootstrap"
	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/observability/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "phasectl"
	app.Usage = "administration of the phase review and transmittal workflow"

	actorFlag := cli.StringFlag{
		Name:   "actor",
		Usage:  "user recorded in the audit trail",
		Value:  "phasectl",
		EnvVar: "PHASE_ACTOR",
	}
	app.Flags = []cli.Flag{actorFlag}

	app.Commands = []cli.Command{
		{
			Name:   "migrate",
			Usage:  "Create or upgrade the postgres schema",
			Action: migrate,
		},
		{
			Name:      "import",
			Usage:     "Import transmittal directories from the incoming root",
			ArgsUsage: "[basename...]",
			Action:    withApp(importIncoming),
		},
		{
			Name:      "accept",
			Usage:     "Accept a transmittal and enqueue its processing job",
			ArgsUsage: "<transmittal-id>",
			Action:    withApp(accept),
		},
		{
			Name:      "reject",
			Usage:     "Reject a transmittal and move its directory to the rejected root",
			ArgsUsage: "<transmittal-id>",
			Action:    withApp(reject),
		},
		{
			Name:      "process",
			Usage:     "Process an accepted transmittal synchronously",
			ArgsUsage: "<transmittal-id>",
			Action:    withApp(process),
		},
		{
			Name:  "review",
			Usage: "Batch review operations",
			Subcommands: []cli.Command{
				{
					Name:      "start",
					Usage:     "Start the review of the latest revision of each document",
					ArgsUsage: "<document-id...>",
					Action:    withApp(reviewStart),
				},
				{
					Name:      "cancel",
					Usage:     "Cancel the ongoing review of each document",
					ArgsUsage: "<document-id...>",
					Action:    withApp(reviewCancel),
				},
			},
		},
		{
			Name:  "choices",
			Usage: "Edit configurable choice lists",
			Subcommands: []cli.Command{
				{
					Name:      "add",
					Usage:     "Add a value to a choice list",
					ArgsUsage: "<list-index> <value> [label]",
					Action:    withApp(addChoice),
				},
			},
		},
		{
			Name:      "job",
			Usage:     "Print the status of a background job",
			ArgsUsage: "<job-id>",
			Action:    withApp(jobStatus),
		},
	}

	app.Action = func(clictx *cli.Context) error {
		fmt.Printf("Must specify command. Run `%s help` for info\n", app.Name)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type appAction func(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error

// withApp boots the application for the duration of one command.
func withApp(action appAction) func(*cli.Context) error {
	return func(clictx *cli.Context) error {
		cfg := config.Load()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := bootstrap.New(ctx, cfg, logging.New(logging.Options{
			Service: "phasectl",
			Level:   cfg.LogLevel,
			Format:  logging.FormatText,
			Output:  os.Stderr,
		}))
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		defer app.Close()
		return action(ctx, app, clictx)
	}
}

func actor(clictx *cli.Context) string {
	return clictx.GlobalString("actor")
}

func requireArgs(clictx *cli.Context, n int) error {
	if len(clictx.Args()) < n {
		return cli.NewExitError(fmt.Sprintf("expected %d argument(s): %s", n, clictx.Command.ArgsUsage), 2)
	}
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func progressPrinter(percent float64) {
	fmt.Fprintf(os.Stderr, "\rprogress: %5.1f%%", percent)
	if percent >= 100 {
		fmt.Fprintln(os.Stderr)
	}
}
