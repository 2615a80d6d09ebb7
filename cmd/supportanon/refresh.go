// cmd/supportanon/refresh.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/service"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild mappings from the inventory",
		Long: `Read the inventory and give every new name a replacement token. Existing
tokens never change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				res, err := svc.Refresh(cmd.Context(), service.TriggerManual)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed mappings: %d added, %d total\n", res.After-res.Before, res.After)
				return nil
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every mapping",
		Long: `Forget every mapping. Bundles produced afterwards use new tokens, so
tokens in earlier bundles can no longer be correlated with them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear mappings without --yes")
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all mappings")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the mappings")

	return cmd
}
