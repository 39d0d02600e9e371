package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <borrower-id> <payload.json|->",
	Short: "Apply an upstream borrower payload",
	Long:  "Reads a borrower payload (flags and loans) from a file, or stdin when the path is -, classifies the borrower, selects the primary loan and upserts its loan plans.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := readPayload(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Syncer.Sync(ctx, args[0], raw)
		if err != nil {
			return eris.Wrap(err, "sync borrower")
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		return raw, eris.Wrap(err, "read payload from stdin")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read payload %s", path)
	}
	return raw, nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
