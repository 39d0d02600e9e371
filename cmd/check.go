package main

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <phone>",
	Short: "Print the eligibility verdict for a phone number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		return printJSON(cmd.OutOrStdout(), env.Resolver.Check(ctx, args[0]))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
