// cmd/supportanon/filter.go
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/content"
	"github.com/colebrumley/supportanon/internal/service"
	"github.com/colebrumley/supportanon/internal/stream"
)

func newFilterCmd() *cobra.Command {
	var (
		charset  string
		maxBytes int64
	)

	cmd := &cobra.Command{
		Use:   "filter [file...]",
		Short: "Anonymize files or standard input",
		Long: `Write the anonymized content of each file to standard output, or of
standard input when no file is given. Binary files are copied unchanged.
Files that cannot be found are replaced by a warning line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				if len(args) == 0 {
					return filterStdin(cmd.InOrStdin(), cmd.OutOrStdout(), charset, svc)
				}
				w := svc.ContentWriter()
				for _, path := range args {
					if err := w.WriteTo(cmd.OutOrStdout(), content.NewFile(path, path, maxBytes)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&charset, "charset", "", "Character set of standard input (default UTF-8)")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "Only filter the first N bytes of each file (0 = no limit)")

	return cmd
}

// filterStdin streams in through the filter chain line by line.
func filterStdin(in io.Reader, out io.Writer, charset string, svc *service.Service) error {
	w, err := stream.NewWriter(writeOnly{out}, charset, svc.Chain())
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("filtering standard input: %w", err)
	}
	return w.Close()
}

// writeOnly hides Close so stream.Writer.Close leaves stdout open.
type writeOnly struct {
	io.Writer
}
