// Package classifier gates incoming chat messages before any retrieval work.
package classifier

import (
	"strings"
	"unicode/utf8"
)

// Category is the outcome of classifying a message.
type Category int

const (
	// DocumentRelated messages go through retrieval and the answer model.
	DocumentRelated Category = iota
	// Greeting messages get a canned friendly reply.
	Greeting
	// OutOfScope messages get a canned refusal.
	OutOfScope
)

func (c Category) String() string {
	switch c {
	case Greeting:
		return "greeting"
	case OutOfScope:
		return "out_of_scope"
	default:
		return "document_related"
	}
}

const (
	casualMaxLen   = 15
	fallbackMinLen = 8
)

// casualPatterns doubles as the exact-match greeting list.
var casualPatterns = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "thanks", "thank you", "bye", "goodbye",
	"nice to meet you", "how do you do", "greetings", "sup",
}

var documentKeywords = []string{
	"what", "how", "when", "where", "why", "who", "which", "explain", "describe",
	"tell me", "show me", "list", "define", "meaning", "command", "commands",
	"function", "purpose", "use", "example", "steps", "process", "method",
	"difference", "compare", "between", "types", "kinds", "categories",
	"learn", "predict", "chatbot", "ai", "artificial intelligence", "machine learning",
}

// Classify decides how a message is handled. Rules apply in order to the
// trimmed, lowercased message:
//
//  1. exact greeting match: Greeting
//  2. contains a casual pattern and is shorter than 15 characters: OutOfScope
//  3. contains a question or action keyword: DocumentRelated
//  4. longer than 8 characters: DocumentRelated, otherwise OutOfScope
//
// Matching is by substring, so "this" counts as containing "hi".
func Classify(message string) Category {
	msg := strings.ToLower(strings.TrimSpace(message))
	length := utf8.RuneCountInString(msg)

	for _, p := range casualPatterns {
		if msg == p {
			return Greeting
		}
	}

	if length < casualMaxLen && containsAny(msg, casualPatterns) {
		return OutOfScope
	}

	if containsAny(msg, documentKeywords) {
		return DocumentRelated
	}

	if length > fallbackMinLen {
		return DocumentRelated
	}
	return OutOfScope
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
