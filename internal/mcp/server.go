// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/colebrumley/supportanon/internal/mapping"
	"github.com/colebrumley/supportanon/internal/service"
)

// Server exposes the anonymization service as MCP tools
type Server struct {
	svc    *service.Service
	server *mcp.Server
}

// FilterTextInput is the input schema for the filter_text tool
type FilterTextInput struct {
	Text string `json:"text" jsonschema:"The text to anonymize"`
}

// FilterTextOutput is the output schema for the filter_text tool
type FilterTextOutput struct {
	Text string `json:"text"`
}

// LookupInput is the input schema for the lookup_mapping tool
type LookupInput struct {
	Term string `json:"term" jsonschema:"An original name or a generated replacement"`
}

// LookupOutput is the output schema for the lookup_mapping tool
type LookupOutput struct {
	Found       bool   `json:"found"`
	Original    string `json:"original,omitempty"`
	Replacement string `json:"replacement,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ListMappingsInput is the input schema for the list_mappings tool
type ListMappingsInput struct {
	Category string `json:"category,omitempty" jsonschema:"Optional category: label, item, view, node, computer, user, ip"`
}

// ListMappingsOutput is the output schema for the list_mappings tool
type ListMappingsOutput struct {
	Mappings []MappingResult `json:"mappings"`
	Count    int             `json:"count"`
}

// MappingResult is a single mapping in list results
type MappingResult struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Category    string `json:"category"`
}

// RefreshInput is the input schema for the refresh tool
type RefreshInput struct{}

// RefreshOutput is the output schema for the refresh tool
type RefreshOutput struct {
	Added   int    `json:"added"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// NewServer creates a new MCP server over an initialized service
func NewServer(svc *service.Service) *Server {
	s := &Server{svc: svc}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "supportanon",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "filter_text",
		Description: "Anonymize text the way support bundles are anonymized: known names and IP addresses are replaced by stable tokens and secret values are redacted.",
	}, s.handleFilterText)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_mapping",
		Description: "Find the mapping for an original name or for a replacement token found in an anonymized bundle.",
	}, s.handleLookup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_mappings",
		Description: "List the current name mappings, optionally limited to one category.",
	}, s.handleListMappings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh",
		Description: "Rebuild the mappings from the current inventory. New names get new tokens; existing tokens never change.",
	}, s.handleRefresh)

	s.server = server
	return s
}

func (s *Server) handleFilterText(ctx context.Context, req *mcp.CallToolRequest, input FilterTextInput) (*mcp.CallToolResult, FilterTextOutput, error) {
	out, err := s.svc.SafeFilter(input.Text)
	if err != nil {
		return nil, FilterTextOutput{}, fmt.Errorf("failed to filter text: %w", err)
	}
	return nil, FilterTextOutput{Text: out}, nil
}

func (s *Server) handleLookup(ctx context.Context, req *mcp.CallToolRequest, input LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
	if input.Term == "" {
		return nil, LookupOutput{}, errors.New("term is required")
	}
	m, ok := s.svc.Lookup(input.Term)
	if !ok {
		return nil, LookupOutput{}, nil
	}
	return nil, LookupOutput{
		Found:       true,
		Original:    m.Original,
		Replacement: m.Replacement,
		Category:    string(m.Category),
	}, nil
}

func (s *Server) handleListMappings(ctx context.Context, req *mcp.CallToolRequest, input ListMappingsInput) (*mcp.CallToolResult, ListMappingsOutput, error) {
	category := mapping.Category(input.Category)
	if category != "" && !category.Valid() {
		return nil, ListMappingsOutput{}, fmt.Errorf("unknown category %q", input.Category)
	}

	mappings := s.svc.Mappings(category)
	results := make([]MappingResult, len(mappings))
	for i, m := range mappings {
		results[i] = MappingResult{
			Original:    m.Original,
			Replacement: m.Replacement,
			Category:    string(m.Category),
		}
	}
	return nil, ListMappingsOutput{Mappings: results, Count: len(results)}, nil
}

func (s *Server) handleRefresh(ctx context.Context, req *mcp.CallToolRequest, input RefreshInput) (*mcp.CallToolResult, RefreshOutput, error) {
	res, err := s.svc.Refresh(ctx, service.TriggerManual)
	if err != nil {
		return nil, RefreshOutput{}, fmt.Errorf("failed to refresh: %w", err)
	}
	added := res.After - res.Before
	return nil, RefreshOutput{
		Added:   added,
		Total:   res.After,
		Message: fmt.Sprintf("Refreshed mappings: %d added, %d total", added, res.After),
	}, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP streamable HTTP transport on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close persists the mappings
func (s *Server) Close() error {
	return s.svc.Close()
}
