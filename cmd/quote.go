package cmd

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Dry-run the configured requests and print the outcomes as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		sims, err := b.Quote(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sims)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
