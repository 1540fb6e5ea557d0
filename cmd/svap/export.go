package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/export"
	minioclient "github.com/svap-labs/svap/internal/store/minio"
)

var (
	exportFormat string
	exportOutput string
	exportRunID  string
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Export pipeline results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := newCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.resolveRun(ctx, exportRunID)
		if err != nil {
			return err
		}

		dir := exportOutput
		if dir == "" {
			dir = env.cfg.Pipeline.ExportDir
		}

		var uploader export.Uploader
		if env.cfg.MinIO.Enabled() {
			mc, err := minioclient.NewClient(env.cfg.MinIO)
			if err != nil {
				env.logger.Warn("minio connection failed, local export only", "error", err)
			} else {
				if err := mc.EnsureBucket(ctx); err != nil {
					env.logger.Warn("minio bucket check failed", "error", err)
				}
				uploader = mc
			}
		}

		exporter := export.New(env.store, uploader, dir, env.logger)

		var res export.Result
		if exportFormat == "json" {
			res, err = exporter.JSON(ctx, runID)
		} else {
			res, err = exporter.Markdown(ctx, runID)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Exported to %s\n", res.Path)
		if res.Object != "" {
			fmt.Printf("Uploaded as %s\n", res.Object)
		}
		return nil
	},
}

func init() {
	exportCommand.Flags().StringVar(&exportFormat, "format", "markdown", "Export format: markdown or json")
	exportCommand.Flags().StringVar(&exportOutput, "output", "", "Output directory (defaults to PIPELINE_EXPORT_DIR)")
	exportCommand.Flags().StringVar(&exportRunID, "run", "", "Run ID (defaults to the latest run)")
	rootCmd.AddCommand(exportCommand)
}
