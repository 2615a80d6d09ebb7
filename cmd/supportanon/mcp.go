// cmd/supportanon/mcp.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/mcp"
	"github.com/colebrumley/supportanon/internal/service"
)

func newMCPCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the anonymization tools over MCP",
		Long: `Serve filter_text, lookup_mapping, list_mappings and refresh as MCP tools,
on standard input/output or, with --http, on a streamable HTTP endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				server := mcp.NewServer(svc)
				var err error
				if addr != "" {
					err = server.RunHTTP(cmd.Context(), addr)
				} else {
					err = server.Run(cmd.Context())
				}
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Listen address for streamable HTTP (e.g. 127.0.0.1:9877)")

	return cmd
}
