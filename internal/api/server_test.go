package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/notekeeper/internal/models"
	"github.com/xaenox/notekeeper/internal/storage"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, store storage.Storage) *httptest.Server {
	t.Helper()
	srv := NewServer(store, zap.NewNop(), Options{AllowedOrigins: []string{"http://localhost:5173"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeNote(t *testing.T, raw []byte) models.Note {
	t.Helper()
	var n models.Note
	require.NoError(t, json.Unmarshal(raw, &n))
	return n
}

func decodeNotes(t *testing.T, raw []byte) []models.Note {
	t.Helper()
	var notes []models.Note
	require.NoError(t, json.Unmarshal(raw, &notes))
	return notes
}

func decodeError(t *testing.T, raw []byte) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &e))
	return e.Error
}

func TestGroceriesScenario(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	resp, raw := do(t, ts, http.MethodPost, "/api/notes", map[string]any{
		"title": "Groceries", "content": "milk, eggs", "tags": []string{"home"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	created := decodeNote(t, raw)
	require.NotEmpty(t, created.ID)

	resp, raw = do(t, ts, http.MethodGet, "/api/notes?tag=home", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decodeNotes(t, raw)
	require.Len(t, notes, 1)
	assert.Equal(t, created.ID, notes[0].ID)

	resp, raw = do(t, ts, http.MethodGet, "/api/notes?search=eggs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeNotes(t, raw), 1)

	resp, raw = do(t, ts, http.MethodGet, "/api/notes?search=eggs&tag=work", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))

	resp, raw = do(t, ts, http.MethodDelete, "/api/notes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var del DeleteResponse
	require.NoError(t, json.Unmarshal(raw, &del))
	assert.Equal(t, MsgNoteDeleted, del.Message)

	resp, raw = do(t, ts, http.MethodGet, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, storage.MsgNoteNotFound, decodeError(t, raw))
}

func TestNoteJSONShape(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	resp, raw := do(t, ts, http.MethodPost, "/api/notes", map[string]any{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.ElementsMatch(t, []string{"id", "title", "content", "tags", "createdAt"}, keys(body))
	assert.Equal(t, []any{}, body["tags"])

	createdAt, ok := body["createdAt"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, createdAt)
	assert.NoError(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing title", map[string]any{"content": "c"}, models.MsgTitleContentRequired},
		{"missing content", map[string]any{"title": "t"}, models.MsgTitleContentRequired},
		{"empty strings", map[string]any{"title": "", "content": ""}, models.MsgTitleContentRequired},
		{"malformed json", `{"title": `, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := do(t, ts, http.MethodPost, "/api/notes", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, decodeError(t, raw))
		})
	}

	_, raw := do(t, ts, http.MethodGet, "/api/notes", nil)
	assert.Empty(t, decodeNotes(t, raw), "rejected creates must not persist")
}

func TestUpdate(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	_, raw := do(t, ts, http.MethodPost, "/api/notes", map[string]any{
		"title": "old", "content": "old", "tags": []string{"a", "b"},
	})
	created := decodeNote(t, raw)

	t.Run("replaces wholesale", func(t *testing.T) {
		resp, raw := do(t, ts, http.MethodPut, "/api/notes/"+created.ID, map[string]any{
			"title": "new", "content": "new body", "tags": []string{"c"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		updated := decodeNote(t, raw)
		assert.Equal(t, "new", updated.Title)
		assert.Equal(t, []string{"c"}, updated.Tags)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

		_, raw = do(t, ts, http.MethodGet, "/api/notes/"+created.ID, nil)
		got := decodeNote(t, raw)
		assert.Equal(t, "new", got.Title)
		assert.Equal(t, "new body", got.Content)
		assert.Equal(t, []string{"c"}, got.Tags)
	})

	t.Run("omitted tags clear the list", func(t *testing.T) {
		resp, raw := do(t, ts, http.MethodPut, "/api/notes/"+created.ID, map[string]any{"title": "t", "content": "c"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decodeNote(t, raw).Tags)
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, raw := do(t, ts, http.MethodPut, "/api/notes/"+created.ID, map[string]any{"title": "t"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, models.MsgTitleContentRequired, decodeError(t, raw))
	})

	t.Run("unknown id", func(t *testing.T) {
		resp, raw := do(t, ts, http.MethodPut, "/api/notes/nope", map[string]any{"title": "t", "content": "c"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, storage.MsgNoteNotFound, decodeError(t, raw))

		_, raw = do(t, ts, http.MethodGet, "/api/notes", nil)
		assert.Len(t, decodeNotes(t, raw), 1)
	})
}

func TestDeleteUnknown(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	resp, raw := do(t, ts, http.MethodDelete, "/api/notes/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, storage.MsgNoteNotFound, decodeError(t, raw))
}

func TestListOrderingAndTrailingSlash(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		_, raw := do(t, ts, http.MethodPost, "/api/notes/", map[string]any{"title": title, "content": "x"})
		ids = append([]string{decodeNote(t, raw).ID}, ids...)
	}

	resp, raw := do(t, ts, http.MethodGet, "/api/notes/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []string
	for _, n := range decodeNotes(t, raw) {
		got = append(got, n.ID)
	}
	assert.Equal(t, ids, got)
}

// faultyStore fails every call the way an unreachable database would.
type faultyStore struct{}

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func (faultyStore) List(context.Context, models.NoteFilter) ([]*models.Note, error) {
	return nil, errConnRefused
}
func (faultyStore) Get(context.Context, string) (*models.Note, error) { return nil, errConnRefused }
func (faultyStore) Create(context.Context, models.NoteInput) (*models.Note, error) {
	return nil, errConnRefused
}
func (faultyStore) Update(context.Context, string, models.NoteInput) (*models.Note, error) {
	return nil, errConnRefused
}
func (faultyStore) Delete(context.Context, string) error { return errConnRefused }
func (faultyStore) Close() error                         { return nil }

func TestStoreFaultsAre500(t *testing.T) {
	ts := newTestServer(t, faultyStore{})
	valid := map[string]any{"title": "t", "content": "c"}

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/notes", nil},
		{http.MethodGet, "/api/notes/x", nil},
		{http.MethodPost, "/api/notes", valid},
		{http.MethodPut, "/api/notes/x", valid},
		{http.MethodDelete, "/api/notes/x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, raw := do(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			msg := decodeError(t, raw)
			assert.NotEmpty(t, msg)
			assert.NotContains(t, msg, "5432", "driver errors stay out of responses")
		})
	}

	// Validation still wins over the store.
	resp, _ := do(t, ts, http.MethodPost, "/api/notes", map[string]any{"title": "t"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type panickingStore struct{ faultyStore }

func (panickingStore) List(context.Context, models.NoteFilter) ([]*models.Note, error) {
	panic("boom")
}

func TestPanicsBecome500(t *testing.T) {
	ts := newTestServer(t, panickingStore{})

	resp, raw := do(t, ts, http.MethodGet, "/api/notes", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", decodeError(t, raw))

	resp, _ = do(t, ts, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/notes", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	resp, raw := do(t, ts, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	do(t, ts, http.MethodPost, "/api/notes", map[string]any{"title": "t", "content": "c"})

	resp, raw = do(t, ts, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(raw)
	assert.Contains(t, body, "notekeeper_notes_created_total 1")
	assert.Contains(t, body, "notekeeper_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, storage.NewMemoryStorage())

	resp, raw := do(t, ts, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route not found", decodeError(t, raw))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := NewServer(storage.NewMemoryStorage(), zap.NewNop(), Options{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
