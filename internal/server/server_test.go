package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"

	"remwork/internal/app"
	"remwork/internal/config"
	"remwork/internal/db"
	"remwork/internal/domain"
	"remwork/internal/migrate"
	"remwork/internal/workflow"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.RBAC.Roles = map[string][]string{
		"validator": {"val-1"},
		"admin":     {"admin-1"},
	}
	if err := app.Seed(context.Background(), conn, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := workflow.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			DevLogin:               true,
		},
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
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

func asActor(actorID string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID}
}

func decodeRec(t *testing.T, data []byte) domain.Recommendation {
	t.Helper()
	var rec domain.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal recommendation: %v (%s)", err, string(data))
	}
	return rec
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/recommendations", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, string(data))
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", envelope.Error.Code)
	}

	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestRecommendationLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/recommendations", map[string]any{
		"validation_request_id": "vr-42",
		"model_id":              "model-9",
		"title":                 "Tighten override monitoring",
		"description":           "Override rate exceeds threshold",
		"priority_id":           "medium",
		"assigned_to_id":        "owner-1",
		"target_date":           "2025-12-31T00:00:00Z",
	}, asActor("val-1"))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	rec := decodeRec(t, data)
	if rec.CurrentStatus != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", rec.CurrentStatus)
	}
	base := srv.URL + "/v1/recommendations/" + rec.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/finalize", nil, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize status %d: %s", res.StatusCode, string(data))
	}

	// replay gets the invalid_transition envelope
	res, data = doJSON(t, client, http.MethodPost, base+"/finalize", nil, asActor("val-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/acknowledge", nil, asActor("owner-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/action-plan", map[string]any{
		"tasks": []map[string]any{
			{"description": "Review override log", "owner_id": "owner-1", "target_date": "2025-11-01T00:00:00Z"},
		},
	}, asActor("owner-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit plan status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/action-plan/approve", map[string]any{}, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve plan status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/closure/submit", map[string]any{
		"summary": "Monitoring threshold adjusted and back-tested",
	}, asActor("owner-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit closure status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/closure/approve", map[string]any{}, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve closure status %d: %s", res.StatusCode, string(data))
	}
	closed := decodeRec(t, data)
	if closed.CurrentStatus != domain.StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed with closed_at, got %s", string(data))
	}

	// the audit trail is served oldest first
	res, data = doJSON(t, client, http.MethodGet, base+"/history", nil, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var hist []domain.StatusHistory
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(hist) == 0 || hist[0].NewStatus != domain.StatusDraft {
		t.Fatalf("unexpected history: %s", string(data))
	}
	if hist[len(hist)-1].NewStatus != domain.StatusClosed {
		t.Fatalf("last history row should be closed")
	}
}

func TestForbiddenMappedTo403(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/recommendations", map[string]any{
		"validation_request_id": "vr-1",
		"model_id":              "model-9",
		"title":                 "t",
		"description":           "d",
		"priority_id":           "low",
		"assigned_to_id":        "owner-1",
		"target_date":           "2025-12-31T00:00:00Z",
	}, asActor("val-1"))
	rec := decodeRec(t, data)
	base := srv.URL + "/v1/recommendations/" + rec.ID
	if res, _ := doJSON(t, client, http.MethodPost, base+"/finalize", nil, asActor("val-1")); res.StatusCode != http.StatusOK {
		t.Fatalf("finalize failed")
	}

	// a bystander cannot acknowledge someone else's finding
	res, data := doJSON(t, client, http.MethodPost, base+"/acknowledge", nil, asActor("random-actor"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestValidationMappedTo422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// both source links set
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/recommendations", map[string]any{
		"validation_request_id": "vr-1",
		"monitoring_cycle_id":   "mc-1",
		"model_id":              "model-9",
		"title":                 "t",
		"priority_id":           "low",
		"assigned_to_id":        "owner-1",
	}, asActor("val-1"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" || envelope.Error.Details["field"] != "source" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestDevLoginIssuesUsableJWT(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id": "val-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer list status %d: %s", res.StatusCode, string(data))
	}

	// a garbage token is rejected outright
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"actor_id": "service-1",
		"name":     "ci",
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	var minted struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &minted); err != nil || minted.Key == "" {
		t.Fatalf("no plaintext key returned: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations", nil, map[string]string{
		"X-Api-Key": minted.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key list status %d: %s", res.StatusCode, string(data))
	}

	// deletion revokes the key
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/apikeys/"+minted.ID, nil, asActor("admin-1"))
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete key status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations", nil, map[string]string{
		"X-Api-Key": minted.Key,
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %d", res.StatusCode)
	}

	// non-admins cannot mint
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"actor_id": "service-2",
	}, asActor("val-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin mint, got %d", res.StatusCode)
	}
}

func TestListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/recommendations", map[string]any{
			"validation_request_id": "vr-batch",
			"model_id":              "model-9",
			"title":                 "batch finding",
			"priority_id":           "low",
			"assigned_to_id":        "owner-1",
		}, asActor("val-1"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status %d: %s", i, res.StatusCode, string(data))
		}
	}

	var page struct {
		Items      []domain.Recommendation `json:"items"`
		NextCursor string                  `json:"next_cursor"`
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations?limit=2", nil, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected full page with cursor, got %d items cursor=%q", len(page.Items), page.NextCursor)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/recommendations?limit=2&cursor="+url.QueryEscape(page.NextCursor), nil, asActor("val-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(page.Items))
	}
}
