package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/payd/internal/archive"
	"github.com/groblegark/payd/internal/config"
	"github.com/groblegark/payd/internal/store/postgres"
)

var archiveDays int

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Export events past retention to S3 and prune them",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.ArchiveS3Bucket == "" {
			return fmt.Errorf("PAYD_ARCHIVE_S3_BUCKET is required for archiving")
		}

		days := cfg.RetentionDays
		if archiveDays > 0 {
			days = archiveDays
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)

		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		dest, err := archive.NewS3Destination(cmd.Context(),
			cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
		if err != nil {
			return err
		}

		n, err := archive.New(st, dest, cfg.ArchiveS3KeyPrefix, logger).Run(cmd.Context(), cutoff)
		if err != nil {
			return err
		}

		fmt.Printf("archived %d events older than %s\n", n, cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	archiveCmd.Flags().IntVar(&archiveDays, "days", 0, "retention override in days (default from PAYD_RETENTION_DAYS)")
}
