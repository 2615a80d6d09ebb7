// cmd/supportanon/mappings.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/mapping"
	"github.com/colebrumley/supportanon/internal/service"
)

// mappingRow is the serialized form of a mapping.
type mappingRow struct {
	Original    string `json:"original" yaml:"original"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Category    string `json:"category" yaml:"category"`
}

func toRow(m mapping.Mapping) mappingRow {
	return mappingRow{Original: m.Original, Replacement: m.Replacement, Category: string(m.Category)}
}

func newMappingsCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List name mappings",
		Long: `List the original names and their replacement tokens. Categories that
are switched off in the configuration are not listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			c := mapping.Category(category)
			if c != "" && !c.Valid() {
				return fmt.Errorf("unknown category %q (valid: %v)", category, mapping.Categories)
			}

			return withService(cmd.Context(), func(svc *service.Service) error {
				mappings := svc.Mappings(c)
				data := make([]mappingRow, len(mappings))
				rows := make([][]string, len(mappings))
				for i, m := range mappings {
					data[i] = toRow(m)
					rows[i] = []string{m.Original, m.Replacement, string(m.Category)}
				}
				return printOutput(cmd.OutOrStdout(), format, data, []string{"original", "replacement", "category"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list one category")

	return cmd
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name-or-token>",
		Short: "Find the mapping for an original name or a replacement token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				m, ok := svc.Lookup(args[0])
				if !ok {
					return fmt.Errorf("no mapping for %q", args[0])
				}
				return printOutput(cmd.OutOrStdout(), format, toRow(m),
					[]string{"original", "replacement", "category"},
					[][]string{{m.Original, m.Replacement, string(m.Category)}})
			})
		},
	}
}
