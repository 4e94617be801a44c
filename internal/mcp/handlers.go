package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const defaultMaxResults = 5

// makeAskHandler creates the ask_documents tool handler.
func makeAskHandler(svc ChatService) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		resp, err := svc.Ask(ctx, chat.Request{
			Message:   input.Question,
			DocName:   input.Document,
			SessionID: input.SessionID,
		})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("failed to answer: %w", err)
		}
		return nil, AskOutput{
			Answer:    resp.Reply,
			SessionID: resp.SessionID,
			Category:  resp.Category.String(),
			NoContent: resp.NoContent,
		}, nil
	}
}

// makeSearchHandler creates the search_documents tool handler.
// Sections come back in ranked order, capped at MaxResults.
func makeSearchHandler(svc ChatService) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}

		qc, err := svc.Retrieve(ctx, input.Query, input.Document)
		if errors.Is(err, chat.ErrNoRelevantContent) {
			return nil, SearchOutput{Sections: []SectionResult{}, Message: "No documents are indexed yet."}, nil
		}
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		sections := qc.Sections
		if len(sections) > maxResults {
			sections = sections[:maxResults]
		}
		out := SearchOutput{Sections: make([]SectionResult, 0, len(sections))}
		for _, sec := range sections {
			out.Sections = append(out.Sections, SectionResult{
				Text:     sec.Text,
				Score:    sec.Score,
				Distance: sec.Distance,
				Lexical:  sec.Lexical,
			})
		}
		if len(out.Sections) == 0 {
			out.Message = "No matching sections found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(cat catalog.Catalog) func(
	context.Context, *mcp.CallToolRequest, ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (
		*mcp.CallToolResult, ListOutput, error,
	) {
		docs, err := cat.ListDocuments(ctx)
		if err != nil {
			return nil, ListOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		out := ListOutput{Documents: make([]DocumentSummary, 0, len(docs)), Count: len(docs)}
		for _, d := range docs {
			out.Documents = append(out.Documents, DocumentSummary{
				Name:       d.Name,
				Source:     d.Source,
				Chunks:     d.Chunks,
				Summary:    d.Summary,
				IngestedAt: d.IngestedAt,
			})
		}
		return nil, out, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(index storage.VectorIndex, cat catalog.Catalog) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := index.Stats(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("index_error: failed to read stats: %w", err)
		}
		docs, err := cat.ListDocuments(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("catalog_error: failed to list documents: %w", err)
		}
		runs, err := cat.ListRuns(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("catalog_error: failed to list runs: %w", err)
		}

		out := StatusOutput{
			Backend:   stats.Backend,
			Entries:   stats.Entries,
			Dimension: stats.Dimension,
			Documents: len(docs),
		}
		if len(runs) > 0 {
			last := runs[0]
			out.LastRun = &RunSummary{
				Status:    last.Status,
				Timestamp: last.Timestamp,
				Documents: len(last.Documents),
				Error:     last.Error,
			}
		}
		return nil, out, nil
	}
}
