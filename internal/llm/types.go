package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoRelevantInformation is the marker the extraction step returns when the
// context holds nothing that answers the question.
const NoRelevantInformation = "NO_RELEVANT_INFORMATION_FOUND"

// AnswerRequest asks for a single-shot answer grounded in an assembled context.
type AnswerRequest struct {
	Question string
	Context  string
}

func (r AnswerRequest) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Context) == "" {
		return fmt.Errorf("%w: context is empty", ErrInvalidRequest)
	}
	return nil
}

// AnswerResponse is the model's reply with token accounting.
type AnswerResponse struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// ExtractionRequest is the first call of the two-step answer mode.
type ExtractionRequest struct {
	Question string
	Context  string
}

func (r ExtractionRequest) validate() error {
	return AnswerRequest(r).validate()
}

// ExtractionResponse carries the facts pulled from the context.
type ExtractionResponse struct {
	Facts string
	// Found is false when the model reported NoRelevantInformation.
	Found            bool
	PromptTokens     int64
	CompletionTokens int64
}

// SynthesisRequest is the second call of the two-step answer mode.
type SynthesisRequest struct {
	Question string
	Facts    string
}

func (r SynthesisRequest) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Facts) == "" {
		return fmt.Errorf("%w: facts are empty", ErrInvalidRequest)
	}
	return nil
}

// AnalysisRequest asks for a structured overview of a document.
type AnalysisRequest struct {
	DocumentName string
	Text         string
}

func (r AnalysisRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: document text is empty", ErrInvalidRequest)
	}
	return nil
}

// DocumentAnalysis is the JSON object returned by the analysis call.
type DocumentAnalysis struct {
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"key_points"`
	TableOfContents Entries  `json:"table_of_contents"`
}

// Entries is a list of strings that also accepts objects in the JSON array,
// since models sometimes return table of contents rows as {"title": ..., "pages": ...}.
type Entries []string

func (e *Entries) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Entries, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err == nil {
			out = append(out, flattenEntry(obj))
			continue
		}
		out = append(out, string(item))
	}
	*e = out
	return nil
}

// flattenEntry renders an object row as "title, pages".
func flattenEntry(obj map[string]any) string {
	var parts []string
	for _, key := range []string{"title", "section", "chapter", "pages", "page_range"} {
		if v, ok := obj[key]; ok {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	if len(parts) == 0 {
		b, _ := json.Marshal(obj)
		return string(b)
	}
	return strings.Join(parts, ", ")
}
