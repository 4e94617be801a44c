// Package mcp exposes the document question answering service as MCP tools.
package mcp

import "time"

// AskInput defines the input parameters for the ask_documents tool.
type AskInput struct {
	// Question is the user message.
	Question string `json:"question" jsonschema:"The question to answer from the indexed documents"`
	// Document restricts retrieval to one document name.
	Document string `json:"document,omitempty" jsonschema:"Optional document name to restrict the answer to"`
	// SessionID continues an existing chat session.
	SessionID string `json:"session_id,omitempty" jsonschema:"Optional chat session to continue"`
}

// AskOutput contains the answer.
type AskOutput struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	// Category is greeting, out_of_scope or document_related.
	Category string `json:"category"`
	// NoContent is set when nothing relevant could be retrieved.
	NoContent bool `json:"no_content,omitempty"`
}

// SearchInput defines the input parameters for the search_documents tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"The search query"`
	Document   string `json:"document,omitempty" jsonschema:"Optional document name to restrict the search to"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of sections to return (default 5)"`
}

// SearchOutput contains the ranked sections.
type SearchOutput struct {
	Sections []SectionResult `json:"sections"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// SectionResult is one ranked chunk.
type SectionResult struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
	Lexical  float64 `json:"lexical"`
}

// ListInput takes no parameters.
type ListInput struct{}

// ListOutput contains every catalogued document.
type ListOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// DocumentSummary is the catalog view of one document.
type DocumentSummary struct {
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Chunks     int       `json:"chunks"`
	Summary    string    `json:"summary,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the index.
type StatusOutput struct {
	Backend   string `json:"backend"`
	Entries   int    `json:"entries"`
	Dimension int    `json:"dimension"`
	Documents int    `json:"documents"`
	// LastRun is the newest training run, if any.
	LastRun *RunSummary `json:"last_run,omitempty"`
}

// RunSummary is the short form of a training run.
type RunSummary struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Documents int       `json:"documents"`
	Error     string    `json:"error,omitempty"`
}
