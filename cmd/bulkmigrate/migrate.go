package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leandro-jm/bulk-migration/internal/jobstore"
	"github.com/leandro-jm/bulk-migration/internal/migration"
)

var migrateConfigPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate [config.toml]",
	Short: "run one migration job from a TOML job file synchronously",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateConfigPath, "config", "", "path to job TOML config file")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfgPath := migrateConfigPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: bulkmigrate migrate <config.toml> or --config <config.toml>")
	}

	cfg, err := loadJobConfig(cfgPath)
	if err != nil {
		return err
	}

	store := jobstore.NewMemStore()
	sourceID, targetID := "source", "target"
	store.PutConnection(sourceID, cfg.Source.spec())
	store.PutConnection(targetID, cfg.Target.spec())

	logger := log.New(os.Stderr, "", log.LstdFlags)
	coord := migration.NewCoordinator(store, nil, logger)

	spec := migration.JobSpec{
		JobID:              uuid.NewString(),
		SourceConnectionID: sourceID,
		TargetConnectionID: targetID,
		GlobalRule:         migration.Rule(cfg.GlobalRule),
		Tasks:              cfg.tasks(),
	}

	logger.Printf("bulkmigrate — starting job %s (%d tables)", spec.JobID, len(spec.Tasks))
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()
	record := coord.Run(ctx, spec)

	logger.Printf("job %s finished in %s: %s", spec.JobID, time.Since(start), record.Status)

	return json.NewEncoder(os.Stdout).Encode(record)
}
