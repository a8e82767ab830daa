package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/htmlshot/internal/presets"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Print the loaded preset table as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			table := presets.Load(e.cfg.Assets.PresetsPath, e.logger)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(table); err != nil {
				return fmt.Errorf("encode presets: %w", err)
			}
			return nil
		},
	}
}
