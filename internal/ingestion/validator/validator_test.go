package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name  string
		req   ingestion.IngestRequest
		field string
	}{
		{"valid", ingestion.IngestRequest{Container: "libs/app.jar"}, ""},
		{"valid with entries", ingestion.IngestRequest{Container: "classes", Entries: []string{"com/acme/A.class"}}, ""},
		{"missing container", ingestion.IngestRequest{Container: "  "}, "container"},
		{"absolute container", ingestion.IngestRequest{Container: "/etc/app.jar"}, "container"},
		{"escaping container", ingestion.IngestRequest{Container: "libs/../../app.jar"}, "container"},
		{"long container", ingestion.IngestRequest{Container: strings.Repeat("a", maxContainerLength+1)}, "container"},
		{"empty entry", ingestion.IngestRequest{Container: "app.jar", Entries: []string{""}}, "entries"},
		{"escaping entry", ingestion.IngestRequest{Container: "app.jar", Entries: []string{"../A.class"}}, "entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Contains(t, vErr.Fields, tt.field)
		})
	}
}
