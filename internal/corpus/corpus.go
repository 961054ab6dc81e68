// Package corpus supplies (identifier, text) documents to index builds from
// JSON lines, a directory of text files or a PostgreSQL table, and checks
// them before a build starts.
package corpus

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxIDLength   = 1024
	maxTextLength = 16 << 20
)

// Document is one raw input to a build.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ValidationError holds per-document validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// Validate checks identifier and text length constraints. Repeated
// identifiers are allowed; the build keeps the last text.
func Validate(docs []Document) error {
	errs := make(map[string]string)
	for i, d := range docs {
		field := fmt.Sprintf("documents[%d]", i)
		switch {
		case strings.TrimSpace(d.ID) == "":
			errs[field+".id"] = "id is required"
		case len(d.ID) > maxIDLength:
			errs[field+".id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
		}
		if len(d.Text) > maxTextLength {
			errs[field+".text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
