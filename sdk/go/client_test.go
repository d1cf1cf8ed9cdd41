package workhubsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"T","organization_id":"O","department_id":"D","kind":"routine","title":"Pump","active":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "wh_key"
	task, err := c.CreateTask(context.Background(), "O", "D", "Pump", []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "POST /v1/organizations/O/tasks", gotPath)
	assert.Equal(t, "wh_key", gotKey)
	assert.Equal(t, "D", gotBody["department_id"])
	assert.Equal(t, []any{"alice"}, gotBody["watcher_ids"])
	assert.Equal(t, "T", task.ID)
	assert.True(t, task.Active)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/entities/comment/C1/restore", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"restore_blocked","message":"restore blocked","details":{"ref_type":"task","ref_id":"T"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	_, err := c.Restore(context.Background(), "comment", "C1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "restore_blocked", apiErr.Code)
	assert.Equal(t, "T", apiErr.Details["ref_id"])
}

func TestEntityLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"comment","entity":{"id":"C2","active":false,"inactivated_by":"alice"}}`))
	}))
	defer srv.Close()

	ent, err := New(srv.URL).Get(context.Background(), "comment", "C2")
	require.NoError(t, err)
	lc, err := ent.Lifecycle()
	require.NoError(t, err)
	assert.Equal(t, "comment", ent.Type)
	assert.False(t, lc.Active)
	require.NotNil(t, lc.InactivatedBy)
	assert.Equal(t, "alice", *lc.InactivatedBy)
}
