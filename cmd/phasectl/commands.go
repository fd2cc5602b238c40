package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/kirillkom/phase-edms/internal/bootstrap"
	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/postgres"
)

func migrate(clictx *cli.Context) error {
	cfg := config.Load()
	if cfg.StoreDriver == bootstrap.StoreMemory {
		fmt.Println("memory store has no schema, nothing to migrate")
		return nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	fmt.Println("applying schema")
	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	fmt.Println("schema is up to date")
	return nil
}

func importIncoming(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	summary, err := app.Importer.ImportIncoming(ctx, clictx.Args(), progressPrinter)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func accept(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	job, err := app.Transmittals.Accept(ctx, actor(clictx), clictx.Args().First())
	if err != nil {
		return err
	}
	return printJSON(job)
}

func reject(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	trs, err := app.Transmittals.Reject(ctx, actor(clictx), clictx.Args().First())
	if err != nil {
		return err
	}
	return printJSON(trs)
}

func process(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	id := clictx.Args().First()
	if err := app.Transmittals.Process(ctx, actor(clictx), id, progressPrinter); err != nil {
		return err
	}
	fmt.Printf("transmittal %s accepted\n", id)
	return nil
}

func reviewStart(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	return printJSON(app.Batch.StartReviews(ctx, actor(clictx), clictx.Args(), progressPrinter))
}

func reviewCancel(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	return printJSON(app.Batch.CancelReviews(ctx, actor(clictx), clictx.Args(), progressPrinter))
}

func addChoice(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 2); err != nil {
		return err
	}
	listIndex, err := strconv.Atoi(clictx.Args().Get(0))
	if err != nil || listIndex <= 0 {
		return cli.NewExitError("list index must be a positive integer", 2)
	}
	entry := &domain.ChoiceEntry{
		ID:        uuid.NewString(),
		ListIndex: listIndex,
		Index:     clictx.Args().Get(1),
		Label:     clictx.Args().Get(2),
	}
	if entry.Label == "" {
		entry.Label = entry.Index
	}
	if err := app.Choices.Save(ctx, entry); err != nil {
		return err
	}
	values, err := app.Choices.Values(ctx, listIndex)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"list_index": listIndex, "values": values})
}

func jobStatus(ctx context.Context, app *bootstrap.App, clictx *cli.Context) error {
	if err := requireArgs(clictx, 1); err != nil {
		return err
	}
	status, err := app.Jobs.Status(ctx, clictx.Args().First())
	if err != nil {
		return err
	}
	return printJSON(status)
}
