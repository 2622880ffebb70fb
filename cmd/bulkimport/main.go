package main

import (
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"

	"github.com/mangabako/mangabako/pkg/bulkimport"
	"github.com/mangabako/mangabako/pkg/config"
	"github.com/mangabako/mangabako/pkg/database"
	"github.com/mangabako/mangabako/pkg/ingest"
	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/migrations"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/storage"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	app := &cli.App{
		Name:      "bulkimport",
		Usage:     "Import a directory of manga archives and folders",
		ArgsUsage: "<directory>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "recurse",
				Aliases: []string{"r"},
				Usage:   "descend into directories that aren't importable themselves",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "user to import the manga under",
				Value: library.DefaultUserID,
			},
		},
		Action: func(c *cli.Context) error {
			root := c.Args().First()
			if root == "" {
				return cli.Exit("a directory to import is required", 1)
			}

			if _, err := migrations.BringUpToDate(c.Context, db); err != nil {
				return err
			}

			q := queue.New(cfg)
			defer q.Close()
			if err := q.Ping(c.Context); err != nil {
				return err
			}

			store, err := storage.New(cfg.StorageRoot, cfg.BaseURL)
			if err != nil {
				return err
			}
			libraryService := library.NewService(db, store)
			gate := ingest.NewGate(libraryService, store, q)
			runner := bulkimport.NewRunner(gate, c.String("user"))

			results, err := runner.Run(c.Context, root, c.Bool("recurse"))
			if err != nil {
				return err
			}

			for _, result := range results {
				if result.Error != "" {
					fmt.Printf("%-10s %s (%s)\n", result.Status, result.Path, result.Error)
					continue
				}
				fmt.Printf("%-10s %s\n", result.Status, result.Path)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}
