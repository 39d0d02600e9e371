package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-crm/internal/lead"
)

var importConcurrency int

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Import leads from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importConcurrency > 0 {
			cfg.Import.Concurrency = importConcurrency
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := lead.NewImporter(env.Intake, cfg.Import.Concurrency).ImportFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "import leads")
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "parallel submissions (default from config)")
	rootCmd.AddCommand(importCmd)
}
