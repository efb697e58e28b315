// Package validator checks ingestion requests before any container is opened
// and returns per-field error details.
package validator

import (
	"fmt"
	"path"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion"
)

const (
	maxContainerLength = 1024
	maxEntryLength     = 4096
	maxEntries         = 10000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest rejects empty or escaping container names and
// malformed entry paths.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(req.Container)
	switch {
	case name == "":
		errs["container"] = "container is required"
	case len(name) > maxContainerLength:
		errs["container"] = fmt.Sprintf("container must be at most %d characters", maxContainerLength)
	case escapes(name):
		errs["container"] = "container must be relative to the container root"
	}

	if len(req.Entries) > maxEntries {
		errs["entries"] = fmt.Sprintf("at most %d entries per request", maxEntries)
	}
	for i, e := range req.Entries {
		if e == "" || len(e) > maxEntryLength || escapes(e) {
			errs["entries"] = fmt.Sprintf("entry %d must be a relative path of at most %d characters", i, maxEntryLength)
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func escapes(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return true
	}
	clean := path.Clean(p)
	return clean == ".." || strings.HasPrefix(clean, "../")
}
