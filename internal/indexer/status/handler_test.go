package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

type fakeReader struct {
	records   map[string]Record
	lastLimit int
	err       error
}

func (f *fakeReader) Get(_ context.Context, artifact string) (*Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[artifact]
	if !ok {
		return nil, fmt.Errorf("%w: artifact %s", apperrors.ErrEntryNotFound, artifact)
	}
	return &rec, nil
}

func (f *fakeReader) ListByStatus(_ context.Context, status string, limit int) ([]Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastLimit = limit
	var out []Record
	for _, rec := range f.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func serve(t *testing.T, store Reader, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(store).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func fixtures() *fakeReader {
	return &fakeReader{records: map[string]Record{
		"app.jar!/com/acme/Widget.class": {Artifact: "app.jar!/com/acme/Widget.class", Module: "com/acme/Widget", Status: StatusIndexed},
		"app.jar!/com/acme/Broken.class": {Artifact: "app.jar!/com/acme/Broken.class", Status: StatusAbandoned, Error: "truncated"},
	}}
}

func TestListArtifacts(t *testing.T) {
	store := fixtures()
	rec := serve(t, store, "/api/v1/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string   `json:"status"`
		Artifacts []Record `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusAbandoned, body.Status)
	require.Len(t, body.Artifacts, 1)
	assert.Equal(t, "truncated", body.Artifacts[0].Error)
	assert.Equal(t, defaultListLimit, store.lastLimit)

	rec = serve(t, store, "/api/v1/artifacts?status=indexed&limit=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, store.lastLimit)
}

func TestListArtifactsRejectsBadParams(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, serve(t, fixtures(), "/api/v1/artifacts?status=pending").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, fixtures(), "/api/v1/artifacts?limit=0").Code)
}

func TestGetArtifact(t *testing.T) {
	rec := serve(t, fixtures(), "/api/v1/artifacts/app.jar!/com/acme/Widget.class")
	require.Equal(t, http.StatusOK, rec.Code)
	var got Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "com/acme/Widget", got.Module)

	assert.Equal(t, http.StatusNotFound, serve(t, fixtures(), "/api/v1/artifacts/app.jar!/Missing.class").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, fixtures(), "/api/v1/artifacts/com/acme/Widget.class").Code)
}

func TestStoreFailureHidesDetail(t *testing.T) {
	rec := serve(t, &fakeReader{err: errors.New("pq: password authentication failed")}, "/api/v1/artifacts/a.jar!/A.class")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
