package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/config"
	"workhub/internal/db"
	"workhub/internal/domain"
	"workhub/internal/engine"
	"workhub/internal/migrate"
	"workhub/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(repo.Repo{DB: conn, Dialect: dialect}, config.Default(), quietLogger())
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

// seed builds organization O, department D, user alice, task T and the
// comment chain C1 <- C2 over HTTP.
func seed(t *testing.T, srv *testServer) {
	t.Helper()
	c := srv.Client()
	steps := []struct {
		path string
		body map[string]any
	}{
		{"/v1/organizations", map[string]any{"id": "O", "name": "Acme"}},
		{"/v1/organizations/O/departments", map[string]any{"id": "D", "name": "Ops"}},
		{"/v1/organizations/O/users", map[string]any{"id": "alice", "department_id": "D", "name": "Alice", "email": "alice@example.com"}},
		{"/v1/organizations/O/tasks", map[string]any{"id": "T", "department_id": "D", "title": "Replace pump", "watcher_ids": []string{"alice"}}},
		{"/v1/comments", map[string]any{"id": "C1", "parent_type": "task", "parent_id": "T", "body": "first"}},
		{"/v1/comments", map[string]any{"id": "C2", "parent_type": "comment", "parent_id": "C1", "body": "reply"}},
	}
	for _, s := range steps {
		res, data := doJSON(t, c, http.MethodPost, srv.URL+s.path, s.body, asActor("alice"))
		require.Equal(t, http.StatusCreated, res.StatusCode, "%s: %s", s.path, data)
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/organizations", map[string]any{"name": "Acme"}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/organizations", map[string]any{"name": "Acme"},
		map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)
}

func TestJWTAndAPIKeyIdentifyTheActor(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.Client()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "carol",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/v1/organizations", map[string]any{"id": "O1", "name": "One"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	require.NoError(t, srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID: "k1", ActorID: "dave", KeyHash: repo.HashAPIKey("wh_test"), CreatedAt: repo.FormatTime(time.Now()),
	}))
	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/organizations", map[string]any{"id": "O2", "name": "Two"},
		map[string]string{"X-Api-Key": "wh_test"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	keys, err := srv.Engine.Repo.ListAPIKeys(context.Background(), "dave")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/v1/events?type=organization.created", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "dave", page.Items[0].ActorID)
	assert.Equal(t, "O2", page.Items[0].EntityID)
	assert.Equal(t, "carol", page.Items[1].ActorID)
}

func TestBearerTokenClaimChecks(t *testing.T) {
	auth := newAuthenticator(AuthConfig{JWTSecret: testJWTSecret, Issuer: "workhub", Audience: "api", Logger: quietLogger()}, repo.Repo{})
	sign := func(claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)
		return "Bearer " + token
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	p, err := auth.fromBearer(sign(jwt.RegisteredClaims{Subject: "erin", Issuer: "workhub", Audience: jwt.ClaimStrings{"api"}, ExpiresAt: exp}))
	require.NoError(t, err)
	assert.Equal(t, Principal{ActorID: "erin", Source: sourceJWT}, p)

	cases := map[string]string{
		"wrong issuer": sign(jwt.RegisteredClaims{Subject: "erin", Issuer: "other", Audience: jwt.ClaimStrings{"api"}, ExpiresAt: exp}),
		"no audience":  sign(jwt.RegisteredClaims{Subject: "erin", Issuer: "workhub", ExpiresAt: exp}),
		"no subject":   sign(jwt.RegisteredClaims{Issuer: "workhub", Audience: jwt.ClaimStrings{"api"}, ExpiresAt: exp}),
		"expired":      sign(jwt.RegisteredClaims{Subject: "erin", Issuer: "workhub", Audience: jwt.ClaimStrings{"api"}, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}),
		"not bearer":   "Basic Zm9vOmJhcg==",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.fromBearer(header)
			assert.Error(t, err)
		})
	}
}

func TestDeleteRestoreOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodDelete, srv.URL+"/v1/entities/task/T", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var cascade CascadeResponse
	require.NoError(t, json.Unmarshal(data, &cascade))
	assert.Equal(t, []RefResponse{
		{Type: domain.TypeTask, ID: "T"},
		{Type: domain.TypeComment, ID: "C1"},
		{Type: domain.TypeComment, ID: "C2"},
	}, cascade.Deactivated)

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/entities/comment/C1/restore", nil, asActor("alice"))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	apiErr := decodeError(t, data)
	assert.Equal(t, "restore_blocked", apiErr.Code)
	assert.Equal(t, "task", apiErr.Details["ref_type"])
	assert.Equal(t, "T", apiErr.Details["ref_id"])
	assert.Equal(t, false, apiErr.Details["missing"])

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/entities/task/T/restore", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var restored RestoreResponse
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, restored.Restored)

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/entities/comment/C1/restore", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/v1/entities/comment/C2", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got struct {
		Type   string `json:"type"`
		Entity struct {
			ID            string  `json:"id"`
			Active        bool    `json:"active"`
			InactivatedBy *string `json:"inactivated_by"`
		} `json:"entity"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "comment", got.Type)
	assert.False(t, got.Entity.Active, "restore does not cascade")
	require.NotNil(t, got.Entity.InactivatedBy)
	assert.Equal(t, "alice", *got.Entity.InactivatedBy)
}

func TestGroupingRootOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/entities/comment/C2/root", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var root RootResponse
	require.NoError(t, json.Unmarshal(data, &root))
	assert.True(t, root.Found)
	assert.Equal(t, "T", root.TaskID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/entities/department/D/root", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	root = RootResponse{}
	require.NoError(t, json.Unmarshal(data, &root))
	assert.False(t, root.Found)
	assert.Empty(t, root.TaskID)
}

func TestCommentDepthLimitOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/v1/comments",
		map[string]any{"id": "C3", "parent_type": "comment", "parent_id": "C2", "body": "third"}, asActor("alice"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/v1/comments",
		map[string]any{"parent_type": "comment", "parent_id": "C3", "body": "too deep"}, asActor("alice"))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	apiErr := decodeError(t, data)
	assert.Equal(t, "depth_exceeded", apiErr.Code)
	assert.EqualValues(t, 3, apiErr.Details["max_depth"])
}

func TestCommentMentionsCreateNotifications(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/comments",
		map[string]any{"parent_type": "task", "parent_id": "T", "body": "@alice look", "mention_ids": []string{"alice"}}, asActor("alice"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created CommentResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.Len(t, created.Notifications, 1)
	assert.Equal(t, "alice", created.Notifications[0].RecipientID)
	require.NotNil(t, created.Notifications[0].TaskID)
	assert.Equal(t, "T", *created.Notifications[0].TaskID)
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)
	c := srv.Client()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown entity", http.MethodGet, "/v1/entities/task/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown type", http.MethodGet, "/v1/entities/widget/T", nil, http.StatusBadRequest, "bad_request"},
		{"missing parent", http.MethodPost, "/v1/comments", map[string]any{"parent_type": "task", "parent_id": "ghost", "body": "x"}, http.StatusNotFound, "not_found"},
		{"bad email", http.MethodPost, "/v1/organizations/O/users", map[string]any{"department_id": "D", "name": "Eve", "email": "nope"}, http.StatusBadRequest, ""},
		{"bad cursor", http.MethodGet, "/v1/events?cursor=abc", nil, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, c, tc.method, srv.URL+tc.path, tc.body, asActor("alice"))
			require.Equal(t, tc.status, res.StatusCode, string(data))
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, data).Code)
			}
		})
	}

	_, data := doJSON(t, c, http.MethodDelete, srv.URL+"/v1/entities/task/T", nil, asActor("alice"))
	require.NotEmpty(t, data)
	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/v1/comments",
		map[string]any{"parent_type": "task", "parent_id": "T", "body": "late"}, asActor("alice"))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "inactive_parent", decodeError(t, data).Code)
}

func TestHandleErrorConflict(t *testing.T) {
	err := handleError(fmt.Errorf("cascade deactivate task:T: %w", domain.ErrConflict))
	assert.Equal(t, http.StatusConflict, err.GetStatus())
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "conflict", apiErr.Body.Code)
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)
	c := srv.Client()

	var seen []int64
	cursor := ""
	for i := 0; i < 10; i++ {
		url := srv.URL + "/v1/events?limit=4&organization_id=O"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		res, data := doJSON(t, c, http.MethodGet, url, nil, asActor("alice"))
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		var page paginatedEvents
		require.NoError(t, json.Unmarshal(data, &page))
		for _, evt := range page.Items {
			seen = append(seen, evt.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	require.Len(t, seen, 6)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i-1], seen[i])
	}
}

func TestPurgeDryRunOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/admin/purge?dry_run=true", nil, asActor("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var report PurgeResponse
	require.NoError(t, json.Unmarshal(data, &report))
	assert.True(t, report.DryRun)
	assert.Empty(t, report.Purged)
}

func TestRunPurgerRemovesExpiredRecords(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seed(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := srv.Engine.Delete(ctx, domain.Ref{Type: domain.TypeTask, ID: "T"}, "alice")
	require.NoError(t, err)
	later := srv.Engine.WithClock(func() time.Time { return time.Now().Add(40 * 24 * time.Hour) })

	done := make(chan struct{})
	go func() {
		RunPurger(ctx, later, 10*time.Millisecond, quietLogger())
		close(done)
	}()
	require.Eventually(t, func() bool {
		_, err := srv.Engine.Get(context.Background(), domain.Ref{Type: domain.TypeComment, ID: "C2"})
		return errors.Is(err, domain.ErrNotFound)
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("purger did not stop")
	}
	_, err = srv.Engine.Get(context.Background(), domain.Ref{Type: domain.TypeTask, ID: "T"})
	require.NoError(t, err)
}

func TestRunPurgerDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		RunPurger(context.Background(), engine.Engine{}, 0, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero interval should return at once")
	}
}

type webhookSink struct {
	mu      sync.Mutex
	types   []string
	headers []http.Header
}

func (s *webhookSink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		s.mu.Lock()
		s.types = append(s.types, evt.Type)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestDispatcherDeliversNewEventsOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateOrganization(ctx, engine.OrganizationCreateOptions{ID: "old", Name: "Before", ActorID: "root"})
	require.NoError(t, err)

	all := &webhookSink{}
	allSrv := httptest.NewServer(all.handler())
	defer allSrv.Close()
	tasks := &webhookSink{}
	tasksSrv := httptest.NewServer(tasks.handler())
	defer tasksSrv.Close()

	d := NewDispatcher(e.Repo, []config.Webhook{
		{URL: allSrv.URL, Secret: "s3cret"},
		{URL: tasksSrv.URL, Events: []string{"task.*"}},
	}, quietLogger())
	d.DispatchAll(ctx)

	_, err = e.CreateOrganization(ctx, engine.OrganizationCreateOptions{ID: "new", Name: "After", ActorID: "root"})
	require.NoError(t, err)
	d.DispatchAll(ctx)

	require.Equal(t, []string{"organization.created"}, all.types)
	assert.Equal(t, "organization.created", all.headers[0].Get("X-Workhub-Event"))
	assert.Equal(t, "new", all.headers[0].Get("X-Workhub-Organization"))
	assert.Equal(t, "s3cret", all.headers[0].Get("X-Workhub-Secret"))
	assert.Empty(t, tasks.types)

	d.DispatchAll(ctx)
	assert.Len(t, all.types, 1, "delivered events are not resent")
}

func TestDispatcherRetriesAfterFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		fail  = true
		count int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(e.Repo, []config.Webhook{{URL: srv.URL}}, quietLogger())
	d.DispatchAll(ctx)
	_, err := e.CreateOrganization(ctx, engine.OrganizationCreateOptions{ID: "O", Name: "Acme", ActorID: "root"})
	require.NoError(t, err)

	d.DispatchAll(ctx)
	mu.Lock()
	fail = false
	mu.Unlock()
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestDispatcherHookNudgesRun(t *testing.T) {
	e := newTestEngine(t)
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	_, err := e.CreateOrganization(context.Background(), engine.OrganizationCreateOptions{ID: "O", Name: "Acme", ActorID: "root"})
	require.NoError(t, err)

	d := NewDispatcher(e.Repo, []config.Webhook{{URL: srv.URL}}, quietLogger())
	d.interval = time.Hour
	e.Hooks = append(e.Hooks, d.Hook)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		_, ok := d.cursors[0]
		return ok
	}, time.Second, 10*time.Millisecond)

	_, err = e.Delete(context.Background(), domain.Ref{Type: domain.TypeOrganization, ID: "O"}, "root")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.types) == 1 && sink.types[0] == "organization.deleted"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
