package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sumitx99/ethical-web-watchdog/internal/auth"
	"github.com/sumitx99/ethical-web-watchdog/internal/chread"
	"github.com/sumitx99/ethical-web-watchdog/internal/delivery"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
	"github.com/sumitx99/ethical-web-watchdog/internal/lifecycle"
	"github.com/sumitx99/ethical-web-watchdog/internal/query"
	"github.com/sumitx99/ethical-web-watchdog/internal/schedule"
	"github.com/sumitx99/ethical-web-watchdog/internal/settings"
	"github.com/sumitx99/ethical-web-watchdog/internal/storage"
)

const chatURL = "https://api.openai.com/v1/chat"

type fakeObservers struct {
	mu   sync.Mutex
	tabs map[int]string
}

func (f *fakeObservers) Register(tabID int, addr string) error {
	if addr == "bad" {
		return errors.New("bad address")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs[tabID] = addr
	return nil
}

func (f *fakeObservers) Unregister(tabID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tabs[tabID]
	delete(f.tabs, tabID)
	return ok
}

type fakeReader struct {
	params chread.ListAnalysesParams
	rows   []chread.AnalysisRow
	since  time.Time
	err    error
}

func (f *fakeReader) ListAnalyses(_ context.Context, p chread.ListAnalysesParams) ([]chread.AnalysisRow, int, error) {
	f.params = p
	return f.rows, len(f.rows), f.err
}

func (f *fakeReader) SummarizeServices(_ context.Context, since time.Time) ([]chread.ServiceSummary, error) {
	f.since = since
	return []chread.ServiceSummary{{Service: "openai", Interactions: 3}}, f.err
}

type testEnv struct {
	server    *httptest.Server
	deps      *Dependencies
	hub       *delivery.Hub
	channel   *delivery.Channel
	observers *fakeObservers
}

func newTestEnv(t *testing.T, configure func(*Dependencies)) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	sched := schedule.New(clockwork.NewFakeClock())
	t.Cleanup(sched.Close)

	hub := delivery.NewHub(16)
	channel := delivery.NewChannel(hub, sched, delivery.Options{}, logger)
	t.Cleanup(channel.Close)

	cache, err := settings.NewCache(context.Background(), settings.NewMemoryStore(), "", logger)
	require.NoError(t, err)

	store := interaction.NewStore(sched.Clock())
	ctrl := lifecycle.NewController(lifecycle.Dependencies{
		Store:     store,
		Deliverer: channel,
		Writer:    storage.NewLogWriter(logger),
		Policy:    cache,
		Scheduler: sched,
		Logger:    logger,
	}, lifecycle.Options{})

	svc := query.NewService(store)
	observers := &fakeObservers{tabs: map[int]string{}}
	deps := &Dependencies{
		Controller: ctrl,
		Query:      svc,
		Dispatcher: query.NewDispatcher(svc, nil, nil, logger),
		Hub:        hub,
		Observers:  observers,
		Settings:   cache,
		Logger:     logger,
	}
	if configure != nil {
		configure(deps)
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, deps: deps, hub: hub, channel: channel, observers: observers}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

const chatRequestBody = `{"requestId":"r1","url":"` + chatURL + `","tabId":7,"method":"POST",` +
	`"requestBody":{"messages":[{"role":"user","content":"Tell me a neutral fact"}]}}`

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestIngestLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/v1/webrequest/before", chatRequestBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["tracked"])
	id, _ := body["interactionId"].(string)
	require.NotEmpty(t, id)

	resp, body = env.do(t, http.MethodGet, "/v1/interactions/"+id+"/analysis", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, "partial", result["status"])
	assert.Equal(t, "good", result["privacyScore"].(map[string]any)["level"])
	assert.Nil(t, result["safetyScore"])

	resp, body = env.do(t, http.MethodPost, "/v1/webrequest/completed",
		`{"requestId":"r1","url":"`+chatURL+`","tabId":7,"statusCode":200,`+
			`"responseHeaders":[{"name":"Content-Type","value":"application/json"}],`+
			`"body":"{\"choices\":[{\"message\":{\"content\":\"Honey never spoils.\"}}]}"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["completed"])

	_, body = env.do(t, http.MethodGet, "/v1/interactions/"+id+"/analysis", "")
	result = body["result"].(map[string]any)
	assert.Equal(t, "complete", result["status"])
	assert.NotNil(t, result["safetyScore"])
	assert.Contains(t, body, "overall")
	assert.Contains(t, []any{"Good", "Moderate", "Poor"}, body["rating"])

	_, body = env.do(t, http.MethodGet, "/v1/interactions", "")
	list := body["interactions"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "complete", list[0].(map[string]any)["status"])
}

func TestIngest_UntrackedAndInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/v1/webrequest/before", `{"url":"https://example.com/","tabId":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["tracked"])

	resp, _ = env.do(t, http.MethodPost, "/v1/webrequest/before", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/v1/webrequest/before", `{"tabId":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/webrequest/completed", `{"url":"`+chatURL+`","statusCode":200}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["completed"], "no pending request")
}

func TestGetAnalysis_Unknown(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/v1/interactions/nope/analysis", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "result")
	assert.Nil(t, body["result"])
	assert.NotContains(t, body, "overall")
}

func TestMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, http.MethodPost, "/v1/messages", `{"type":"ping"}`)
	assert.Equal(t, "pong", body["status"])

	_, body = env.do(t, http.MethodPost, "/v1/messages", `{"type":"nope"}`)
	assert.Equal(t, "Unknown message type", body["error"])

	_, body = env.do(t, http.MethodPost, "/v1/messages", `{"type":"get_analysis_result","interactionId":"x"}`)
	assert.Nil(t, body["result"])

	_, body = env.do(t, http.MethodPost, "/v1/messages", `{"type":"test_ai_service","service":"openai","testPrompts":["hi"]}`)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "hi", results[0].(map[string]any)["prompt"])
}

func TestSettingsRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["autoScan"])
	assert.Equal(t, float64(70), body["sensitivityThreshold"])

	resp, _ = env.do(t, http.MethodPut, "/v1/settings", `{"autoScan":true,"sensitivityThreshold":900}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/v1/settings",
		`{"notifications":false,"autoScan":false,"sensitivityThreshold":40,"services":[{"id":"openai","name":"OpenAI","enabled":true}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["autoScan"])

	_, body = env.do(t, http.MethodPost, "/v1/webrequest/before", chatRequestBody)
	assert.Equal(t, false, body["tracked"], "autoScan off disables tracking")
}

func TestObserverRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/v1/tabs/3/observer", `{"addr":"localhost:7070"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(3), body["tabId"])
	assert.Equal(t, "localhost:7070", env.observers.tabs[3])

	resp, _ = env.do(t, http.MethodPost, "/v1/tabs/3/observer", `{"addr":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/v1/tabs/x/observer", `{"addr":"localhost:7070"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/v1/tabs/3/observer", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/v1/tabs/3/observer", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestObserverRoutes_Disabled(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.Observers = nil })
	resp, _ := env.do(t, http.MethodPost, "/v1/tabs/3/observer", `{"addr":"localhost:7070"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	t.Run("no clickhouse", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp, _ := env.do(t, http.MethodGet, "/v1/history", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		resp, _ = env.do(t, http.MethodGet, "/v1/history/summary", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("filters", func(t *testing.T) {
		reader := &fakeReader{rows: []chread.AnalysisRow{{InteractionID: "a", Service: "openai", Stage: "complete"}}}
		env := newTestEnv(t, func(d *Dependencies) { d.Reader = reader })

		resp, body := env.do(t, http.MethodGet, "/v1/history?service=openai&stage=complete&tab_id=4&page=2&page_size=9999", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["total"])
		assert.Equal(t, float64(chread.MaxPageSize), body["page_size"])
		require.NotNil(t, reader.params.Service)
		assert.Equal(t, "openai", *reader.params.Service)
		require.NotNil(t, reader.params.TabID)
		assert.Equal(t, int32(4), *reader.params.TabID)
		assert.Equal(t, 2, reader.params.Page)
	})

	t.Run("bad tab id", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.Reader = &fakeReader{} })
		resp, _ := env.do(t, http.MethodGet, "/v1/history?tab_id=abc", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reader error", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.Reader = &fakeReader{err: errors.New("boom")} })
		resp, _ := env.do(t, http.MethodGet, "/v1/history", "")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("summary", func(t *testing.T) {
		reader := &fakeReader{}
		env := newTestEnv(t, func(d *Dependencies) { d.Reader = reader })
		resp, body := env.do(t, http.MethodGet, "/v1/history/summary?days=500", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(90), body["days"])
		assert.Len(t, body["services"], 1)
		assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), reader.since, time.Minute)
	})
}

func TestAuth(t *testing.T) {
	const key = "wdk_api_test_key_0123456789"
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)

	env := newTestEnv(t, func(d *Dependencies) {
		d.Verifier = auth.NewVerifier(auth.VerifierConfig{Keys: auth.StaticKeys{string(hash)}})
	})

	call := func(header string) int {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/interactions", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer wdk_wrong_key_000000"))
	assert.Equal(t, http.StatusOK, call("Bearer "+key))

	resp, _ := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health check is public")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/v1/settings", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTabEventStream(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/v1/tabs/7/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.hub.Subscribers(7) == 1 }, 2*time.Second, 5*time.Millisecond)

	r, _ := env.do(t, http.MethodPost, "/v1/webrequest/before", chatRequestBody)
	require.Equal(t, http.StatusAccepted, r.StatusCode)

	events := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(events)
	}()

	got := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed early")
			got[ev] = true
		case <-timeout:
			t.Fatalf("timed out waiting for push events, got %v", got)
		}
	}
	assert.True(t, got["ai_interaction_detected"])
	assert.True(t, got["analysis_update"])

	env.channel.Wait()
	assert.Equal(t, int64(2), env.channel.Delivered())
}

func TestTabEventStream_BadTab(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/v1/tabs/abc/events", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
