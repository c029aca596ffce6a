package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeval/internal/config"
	"aeval/internal/db"
	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/events"
	"aeval/internal/migrate"
	"aeval/internal/ratelimit"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, opts ...func(*Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(context.Background(), conn))

	cfg := config.Default()
	cfg.Simulation.Latency = 0
	cfg.Simulation.SubmitLatency = 0
	cfg.Simulation.ScanLatency = 0
	e, err := engine.New(conn, cfg, nil)
	require.NoError(t, err)

	scfg := Config{Engine: e, BasePath: "/v0"}
	for _, opt := range opts {
		opt(&scfg)
	}
	handler, err := New(scfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
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
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func TestHealthAndRequestID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{"X-Request-ID": "req-42"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"ok","chat_sessions":0,"wizard_sessions":0}`, string(data))
	assert.Equal(t, "req-42", res.Header.Get("X-Request-ID"))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestCatalog(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[DatasetList](t, data).Items, 8)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets?q=red-teaming", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	items := decode[DatasetList](t, data).Items
	require.Len(t, items, 1)
	assert.Equal(t, "ds-003", items[0].ID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets/ds-404", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/metrics?grouped=true", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	metrics := decode[MetricList](t, data)
	assert.Len(t, metrics.Items, 21)
	require.NotEmpty(t, metrics.Groups)
	assert.Equal(t, domain.CategoryAccuracy, metrics.Groups[0].Category)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/scenarios", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[ScenarioList](t, data).Items, 4)
}

func TestClassifyAndRecommend(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/classify", map[string]any{"text": "Test my RAG agent for safety"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.IntentRAGSafety, decode[ClassifyResponse](t, data).Intent)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/recommend", map[string]any{"intent": "code_eval"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rec := decode[RecommendResponse](t, data)
	require.NotNil(t, rec.Recommendation)
	assert.Equal(t, "ds-002", rec.Recommendation.Dataset.ID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/recommend", map[string]any{"text": "good morning"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rec = decode[RecommendResponse](t, data)
	assert.Equal(t, domain.IntentUnknown, rec.Intent)
	assert.Nil(t, rec.Recommendation)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/recommend", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets/ds-002/compatibility", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	c := decode[CompatibilityResponse](t, data)
	require.NotEmpty(t, c.Scenarios)
	assert.Equal(t, "code", c.Scenarios[0].Scenario.ID)
	assert.True(t, c.Scenarios[0].Compatible)
}

func TestStatelessChat(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/chat", map[string]any{"message": "Evaluate python coding ability"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	reply := decode[ChatReplyResponse](t, data)
	require.NotNil(t, reply.Recommendation)
	assert.Equal(t, "ds-002", reply.Recommendation.Dataset.ID)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/chat", map[string]any{"message": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", errorCode(t, data))
}

func TestChatSessionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	sess := decode[ChatSessionResponse](t, data)
	require.Len(t, sess.Messages, 1)
	assert.Contains(t, sess.Messages[0].Content, "your AI system")
	base := srv.URL + "/v0/chat/sessions/" + sess.ID

	res, data = doJSON(t, client, http.MethodPost, base+"/messages", map[string]any{"message": "rag accuracy please"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	turn := decode[ChatTurnResponse](t, data)
	require.NotNil(t, turn.Message.Recommendation)
	assert.Equal(t, "ds-001", turn.Message.Recommendation.Dataset.ID)
	assert.Len(t, turn.Session.Messages, 3)
	assert.Equal(t, "idle", turn.Session.State)
	recMsg := turn.Message.ID

	res, data = doJSON(t, client, http.MethodPut, base+"/messages/"+recMsg+"/metrics", map[string]any{"metric_ids": []string{}}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, base+"/messages/"+recMsg+"/accept", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, decode[ChatTurnResponse](t, data).Message.Content, "Great!")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type="+events.TypeChatAccepted, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts := decode[paginatedEvents](t, data)
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "ds-001", evts.Items[0].EntityID)

	res, data = doJSON(t, client, http.MethodPost, base+"/messages/missing/accept", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, base+"/messages", map[string]any{"message": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, base+"/reset", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[ChatSessionResponse](t, data).Messages, 1)

	res, _ = doJSON(t, client, http.MethodDelete, base, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, client, http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))
}

func TestWizardFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/wizard/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	w := decode[WizardSessionResponse](t, data)
	base := srv.URL + "/v0/wizard/sessions/" + w.ID

	res, data = doJSON(t, client, http.MethodPost, base+"/next", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPut, base+"/info", map[string]any{"name": "Safety sweep"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, base+"/next", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPut, base+"/dataset", map[string]any{"dataset_id": "ds-404"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, data = doJSON(t, client, http.MethodPut, base+"/dataset", map[string]any{"dataset_id": "ds-003"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, base+"/next", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, base+"/choices", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	choices := decode[WizardChoicesResponse](t, data)
	require.NotEmpty(t, choices.Scenarios)
	assert.Equal(t, "safety", choices.Scenarios[0].Scenario.ID)

	res, data = doJSON(t, client, http.MethodPut, base+"/scenario", map[string]any{"scenario_id": "safety"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, base+"/next", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	w = decode[WizardSessionResponse](t, data)
	assert.True(t, w.Wizard.CanSubmit)
	assert.Equal(t, "Review", w.Wizard.StepTitle)

	res, data = doJSON(t, client, http.MethodGet, base+"/review", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	review := decode[map[string]any](t, data)
	assert.EqualValues(t, 8, review["estimated_minutes"])

	res, data = doJSON(t, client, http.MethodPost, base+"/submit", nil, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	ev := decode[domain.Evaluation](t, data)
	assert.Equal(t, "Safety sweep", ev.Name)
	assert.Len(t, ev.MetricIDs, 5)

	res, data = doJSON(t, client, http.MethodPost, base+"/submit", nil, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/evaluations/"+ev.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "ds-003", decode[domain.Evaluation](t, data).DatasetID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/evaluations", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[EvaluationList](t, data).Items, 1)
}

func TestWizardCancel(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/wizard/sessions", nil, nil)
	base := srv.URL + "/v0/wizard/sessions/" + decode[WizardSessionResponse](t, data).ID

	res, data := doJSON(t, client, http.MethodPost, base+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	w := decode[WizardSessionResponse](t, data)
	assert.True(t, w.Aborted)
	assert.Equal(t, "cancelled", string(w.Wizard.Status))

	res, data = doJSON(t, client, http.MethodPut, base+"/info", map[string]any{"name": "late"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", errorCode(t, data))
}

func TestOnboarding(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/onboarding", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	status := decode[OnboardingResponse](t, data)
	assert.False(t, status.Onboarded)
	require.Len(t, status.Questions, 3)
	assert.Equal(t, "agentName", status.Questions[2].Key)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/onboarding", map[string]any{"role": "QA", "goal": " ", "agentName": "Orbit"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/onboarding", map[string]any{"role": "QA", "goal": "safety", "agentName": " Orbit "}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	status = decode[OnboardingResponse](t, data)
	require.NotNil(t, status.Profile)
	assert.Equal(t, "Orbit", status.Profile.AgentName)

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	assert.Contains(t, decode[ChatSessionResponse](t, data).Messages[0].Content, "**Orbit**")

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/onboarding", nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	assert.NotContains(t, decode[ChatSessionResponse](t, data).Messages[0].Content, "Orbit")
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, srv.Engine.Events.Record(ctx, "test.event", "dataset", id, nil))
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].EntityID)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+page.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page = decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].EntityID)
	assert.Empty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", errorCode(t, data))
}

func TestMetadataEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-003/metadata/regenerate", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[SuggestionList](t, data).Items, 3)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-003/metadata/regenerate", map[string]any{"field": "tags"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	items := decode[SuggestionList](t, data).Items
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Tags, "safety")

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-404/metadata/regenerate", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/detect", map[string]any{
		"filename": "support_tickets.csv",
		"content":  "question,answer\nHow?,Like this\nWhy?,Because\n",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	det := decode[map[string]any](t, data)
	assert.EqualValues(t, 2, det["records"])
	assert.Equal(t, "csv", det["file_format"])

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/detect", map[string]any{"filename": "x.parquet", "content": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", errorCode(t, data))
}

func TestChatRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	defer limiter.Close()
	srv, cleanup := newTestServer(t, func(c *Config) { c.Limiter = limiter })
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat", map[string]any{"message": "hello there"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat", map[string]any{"message": "hello again"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "1", res.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, "reads are not throttled")
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode[map[string]any](t, data)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/chat/sessions/{session_id}/messages")
	assert.Contains(t, paths, "/v0/wizard/sessions/{session_id}/submit")

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestSessionsExpire(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) { c.SessionTTL = time.Millisecond })
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	first := decode[ChatSessionResponse](t, data).ID
	time.Sleep(5 * time.Millisecond)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/chat/sessions/"+first, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestIdleSessionExpiresWithoutNewSessions(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) { c.SessionTTL = time.Millisecond })
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	id := decode[ChatSessionResponse](t, data).ID
	time.Sleep(5 * time.Millisecond)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/chat/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestHealthCountsSessions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/chat/sessions", nil, nil)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/wizard/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok","chat_sessions":2,"wizard_sessions":1}`, string(data))
}

func TestOpenAPIDocumentConcurrentReads(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for _, b := range bodies {
		require.NotEmpty(t, b)
		assert.Equal(t, bodies[0], b)
	}
}

func TestSaveMetadataEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/datasets/ds-001/metadata", map[string]any{
		"name": "Support Tickets",
		"tags": []string{"support", "english", "tickets"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	ds := decode[domain.Dataset](t, data)
	assert.Equal(t, "Support Tickets", ds.Name)
	assert.Equal(t, []string{"support", "english", "tickets"}, ds.Tags)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/datasets/ds-001/metadata", map[string]any{"name": " "}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/v0/datasets/ds-404/metadata", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
