package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoProcessor() Processor {
	return ProcessorFunc(func(_ context.Context, _ string, msg Message) (Message, []Artifact, error) {
		return TextMessage("assistant", "echo: "+msg.Text()), nil, nil
	})
}

func testServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(cfg, AgentCard{Name: "zeph", Version: "1.0",
		Capabilities: AgentCapabilities{Streaming: true}}, echoProcessor())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func rpc(t *testing.T, url, token, method string, params any) Response {
	t.Helper()
	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  method,
		Params:  rawParams,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func taskFromResult(t *testing.T, resp Response) Task {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var task Task
	require.NoError(t, json.Unmarshal(raw, &task))
	return task
}

func TestMessageSendHappyPath(t *testing.T) {
	_, ts := testServer(t, ServerConfig{})

	resp := rpc(t, ts.URL, "", "message/send", SendParams{Message: TextMessage("user", "hi")})
	require.Nil(t, resp.Error)

	task := taskFromResult(t, resp)
	assert.Equal(t, StateCompleted, task.Status.State)
	require.Len(t, task.History, 2)
	assert.Equal(t, "assistant", task.History[1].Role)
	assert.Equal(t, "echo: hi", task.History[1].Text())
}

func TestTasksGetTruncatesHistory(t *testing.T) {
	_, ts := testServer(t, ServerConfig{})

	sent := taskFromResult(t, rpc(t, ts.URL, "", "message/send",
		SendParams{Message: TextMessage("user", "hello")}))

	one := 1
	resp := rpc(t, ts.URL, "", "tasks/get", GetParams{ID: sent.ID, HistoryLength: &one})
	require.Nil(t, resp.Error)
	task := taskFromResult(t, resp)
	require.Len(t, task.History, 1)
	assert.Equal(t, "assistant", task.History[0].Role)
}

func TestTasksGetNotFound(t *testing.T) {
	_, ts := testServer(t, ServerConfig{})
	resp := rpc(t, ts.URL, "", "tasks/get", GetParams{ID: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)
}

func TestCancelTerminalTaskReturns32002(t *testing.T) {
	_, ts := testServer(t, ServerConfig{})
	task := taskFromResult(t, rpc(t, ts.URL, "", "message/send",
		SendParams{Message: TextMessage("user", "done already")}))

	resp := rpc(t, ts.URL, "", "tasks/cancel", CancelParams{ID: task.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotCancelable, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	_, ts := testServer(t, ServerConfig{})
	resp := rpc(t, ts.URL, "", "tasks/explode", struct{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodUnknown, resp.Error.Code)
}

func TestBearerAuth(t *testing.T) {
	_, ts := testServer(t, ServerConfig{BearerToken: "secret-token"})

	// Wrong token is rejected at the HTTP layer.
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"x"}}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct token passes.
	out := rpc(t, ts.URL, "secret-token", "tasks/get", GetParams{ID: "x"})
	require.NotNil(t, out.Error)
	assert.Equal(t, CodeTaskNotFound, out.Error.Code)

	// Agent card stays unauthenticated.
	cardResp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer cardResp.Body.Close()
	assert.Equal(t, http.StatusOK, cardResp.StatusCode)
	var card AgentCard
	require.NoError(t, json.NewDecoder(cardResp.Body).Decode(&card))
	assert.Equal(t, "zeph", card.Name)
}

func TestRateLimiterFixedWindow(t *testing.T) {
	limiter := NewRateLimiter(3)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("1.2.3.4"), "request %d", i)
	}
	// The (limit+1)-th request inside the window is refused.
	assert.False(t, limiter.Allow("1.2.3.4"))

	// Other IPs are unaffected.
	assert.True(t, limiter.Allow("5.6.7.8"))

	// Just past the window boundary the counter resets.
	now = base.Add(rateWindow + time.Millisecond)
	assert.True(t, limiter.Allow("1.2.3.4"))
}

func TestTaskStateMachine(t *testing.T) {
	m := NewTaskManager()
	task := m.Create(TextMessage("user", "x"))
	assert.Equal(t, StateSubmitted, task.Status.State)

	_, err := m.UpdateState(task.ID, StateWorking, nil)
	require.NoError(t, err)
	_, err = m.UpdateState(task.ID, StateCompleted, nil)
	require.NoError(t, err)

	// Terminal state refuses further transitions and cancel.
	_, err = m.UpdateState(task.ID, StateWorking, nil)
	assert.ErrorIs(t, err, ErrNotCancelable)
	_, err = m.Cancel(task.ID)
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestCancelRunningTask(t *testing.T) {
	m := NewTaskManager()
	task := m.Create(TextMessage("user", "x"))
	_, err := m.UpdateState(task.ID, StateWorking, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	m.BindCancel(task.ID, cancel)

	canceled, err := m.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, canceled.Status.State)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestDiscoverySecurityChecks(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{RequireTLS: true})
	_, err := d.Fetch(context.Background(), "http://example.com")
	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)
	assert.Contains(t, secErr.Reason, "TLS required")

	d = NewDiscovery(DiscoveryConfig{SSRFProtection: true})
	_, err = d.Fetch(context.Background(), "http://127.0.0.1:8080")
	require.ErrorAs(t, err, &secErr)
	assert.Contains(t, secErr.Reason, "SSRF")
}

func TestDiscoveryCachesCards(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(AgentCard{Name: "peer"})
	}))
	defer upstream.Close()

	d := NewDiscovery(DiscoveryConfig{CardTTL: time.Hour})
	card, err := d.Fetch(context.Background(), upstream.URL)
	require.NoError(t, err)
	assert.Equal(t, "peer", card.Name)

	_, err = d.Fetch(context.Background(), upstream.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second fetch served from cache")
}

func TestJSONRPCRoundTrip(t *testing.T) {
	task := Task{
		ID:        "t1",
		Status:    TaskStatus{State: StateWorking, Timestamp: nowRFC3339()},
		Artifacts: []Artifact{},
		History:   []Message{TextMessage("user", "hi")},
	}
	data, err := json.Marshal(task)
	require.NoError(t, err)
	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, task, decoded)
}
