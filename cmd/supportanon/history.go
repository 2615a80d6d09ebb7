// cmd/supportanon/history.go
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/service"
)

func newHistoryCmd() *cobra.Command {
	var (
		triggerType string
		state       string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refreshes",
		Long:  "Show recent refreshes. History is only recorded with the sqlite storage backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if svc.Config().Storage.Backend != "sqlite" {
					fmt.Fprintln(cmd.ErrOrStderr(), "refresh history requires the sqlite storage backend")
				}
				records, err := svc.History(triggerType, state, limit)
				if err != nil {
					return err
				}
				rows := make([][]string, len(records))
				for i, r := range records {
					rows[i] = []string{
						humanize.Time(r.StartedAt),
						r.TriggerType,
						r.State,
						(time.Duration(r.DurationMs) * time.Millisecond).String(),
						strconv.Itoa(r.MappingsAfter - r.MappingsBefore),
						strconv.Itoa(r.MappingsAfter),
						r.Error,
					}
				}
				return printOutput(cmd.OutOrStdout(), format, records,
					[]string{"started", "trigger", "state", "duration", "added", "total", "error"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&triggerType, "trigger", "", "Only show one trigger type (startup, scheduled, filesystem, manual, reload)")
	cmd.Flags().StringVar(&state, "state", "", "Only show success or failure")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")

	return cmd
}
