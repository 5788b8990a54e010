package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/leaderboard"
	"github.com/signalnine/agentarena/internal/server"
	"github.com/signalnine/agentarena/internal/simulated"
	"github.com/signalnine/agentarena/internal/submission"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	srv     *httptest.Server
	manager *submission.Manager
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	cat := catalog.NewStatic(
		[]*catalog.Agent{
			{ID: "alpha", OwnerID: "alice", Name: "Alpha", Type: "gpt-4"},
			{ID: "beta", OwnerID: "bob", Name: "Beta", Type: "mock"},
		},
		[]*catalog.Task{{ID: "shop", Title: "Shop", Difficulty: "MEDIUM", EnvironmentKind: "omnizon"}},
	)
	statuses := execution.NewStatusTable()
	engine := simulated.New(simulated.Options{
		Rand:     rand.New(rand.NewSource(3)),
		Statuses: statuses,
		MinDelay: delay,
		MaxDelay: delay,
	})
	selector := execution.NewSelector(false, nil, func() execution.Backend { return engine })
	store := submission.NewMemoryStore()
	m := submission.NewManager(submission.Options{
		Catalog:      cat,
		Store:        store,
		Selector:     selector,
		Statuses:     statuses,
		PollInterval: 5 * time.Millisecond,
	})
	s := server.New(server.Options{
		Manager:        m,
		Leaderboard:    leaderboard.New(cat, store, rand.New(rand.NewSource(1))),
		Catalog:        cat,
		Selector:       selector,
		StreamInterval: 10 * time.Millisecond,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Close(ctx)
	})
	return &fixture{srv: ts, manager: m}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(server.UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (f *fixture) submit(t *testing.T, req map[string]any) *submission.Record {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/v1/submissions", "alice", req)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status %d: %s", resp.StatusCode, body)
	}
	var rec submission.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatal(err)
	}
	return &rec
}

func (f *fixture) wait(t *testing.T, id string) *submission.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := f.manager.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 0)
	resp, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"use_live":false`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t, 0)
	tests := []struct {
		name string
		user string
		body any
		want int
	}{
		{"missing user", "", map[string]any{"agent_id": "alpha", "task_id": "shop"}, http.StatusUnauthorized},
		{"bad json", "alice", "{", http.StatusBadRequest},
		{"missing ids", "alice", map[string]any{}, http.StatusBadRequest},
		{"unknown agent", "alice", map[string]any{"agent_id": "ghost", "task_id": "shop"}, http.StatusNotFound},
		{"unknown task", "alice", map[string]any{"agent_id": "alpha", "task_id": "ghost"}, http.StatusNotFound},
		{"foreign agent", "alice", map[string]any{"agent_id": "beta", "task_id": "shop"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/v1/submissions", tt.user, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("got %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestSubmitAndFetch(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.submit(t, map[string]any{
		"agent_id":   "alpha",
		"task_id":    "shop",
		"run_config": map[string]any{"llm_api_key": "sk-secret", "note": "x"},
	})
	if rec.Status != submission.StatusPending {
		t.Errorf("expected PENDING on accept, got %s", rec.Status)
	}
	if _, ok := rec.RunConfig["llm_api_key"]; ok {
		t.Error("api key leaked in submit response")
	}
	f.wait(t, rec.ID)

	resp, body := f.do(t, http.MethodGet, "/api/v1/submissions/"+rec.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "sk-secret") {
		t.Error("api key leaked in get response")
	}
	var got submission.Record
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Status.Terminal() {
		t.Errorf("expected terminal status, got %s", got.Status)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/submissions/"+rec.ID+"/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var st execution.RunStatus
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Status.Terminal() || st.SubmissionID != rec.ID {
		t.Errorf("unexpected status %+v", st)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/submissions", "alice", nil)
	var mine []submission.Record
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &mine) != nil || len(mine) != 1 {
		t.Errorf("expected one submission for alice, got %d: %s", resp.StatusCode, body)
	}

	if resp, _ := f.do(t, http.MethodGet, "/api/v1/submissions/nope", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown submission, got %d", resp.StatusCode)
	}
}

func TestLeaderboardAndAgentSubmissions(t *testing.T) {
	f := newFixture(t, 0)
	for i := 0; i < 3; i++ {
		rec := f.submit(t, map[string]any{"agent_id": "alpha", "task_id": "shop"})
		f.wait(t, rec.ID)
	}

	resp, body := f.do(t, http.MethodGet, "/api/v1/tasks/shop/leaderboard", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", resp.StatusCode, body)
	}
	var entries []leaderboard.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Score > entries[i-1].Score {
			t.Errorf("entries not sorted by score: %v > %v", e.Score, entries[i-1].Score)
		}
	}
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/tasks/ghost/leaderboard", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown task, got %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/agents/alpha/submissions", "", nil)
	var recs []submission.Record
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &recs) != nil || len(recs) != 3 {
		t.Errorf("expected 3 agent submissions, got %d: %s", resp.StatusCode, body)
	}
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/agents/ghost/submissions", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", resp.StatusCode)
	}
}

func TestCatalogListing(t *testing.T) {
	f := newFixture(t, 0)
	resp, body := f.do(t, http.MethodGet, "/api/v1/agents", "", nil)
	var agents []catalog.Agent
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &agents) != nil || len(agents) != 2 {
		t.Errorf("expected 2 agents, got %d: %s", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	var tasks []catalog.Task
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &tasks) != nil || len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d: %s", resp.StatusCode, body)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 2*time.Second)
	rec := f.submit(t, map[string]any{"agent_id": "alpha", "task_id": "shop"})

	if resp, _ := f.do(t, http.MethodPost, "/api/v1/submissions/"+rec.ID+"/cancel", "bob", nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for another user, got %d", resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodPost, "/api/v1/submissions/"+rec.ID+"/cancel", "alice", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel: %d %s", resp.StatusCode, body)
	}
	done := f.wait(t, rec.ID)
	if done.Status != submission.StatusFailed || done.ErrorMessage != "execution cancelled" {
		t.Errorf("expected cancelled failure, got %s %q", done.Status, done.ErrorMessage)
	}

	if resp, _ := f.do(t, http.MethodPost, "/api/v1/submissions/"+rec.ID+"/cancel", "alice", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 once finished, got %d", resp.StatusCode)
	}
	if resp, _ := f.do(t, http.MethodPost, "/api/v1/submissions/nope/cancel", "alice", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown submission, got %d", resp.StatusCode)
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	rec := f.submit(t, map[string]any{"agent_id": "alpha", "task_id": "shop"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/api/v1/submissions/"+rec.ID+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var frames []execution.RunStatus
	for {
		var st execution.RunStatus
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("read: %v", err)
			}
			break
		}
		frames = append(frames, st)
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one frame")
	}
	last := frames[len(frames)-1]
	if !last.Status.Terminal() || last.ProgressPercentage != 100 {
		t.Errorf("expected final terminal frame, got %+v", last)
	}
	for _, fr := range frames {
		if fr.SubmissionID != rec.ID {
			t.Errorf("frame for wrong submission %q", fr.SubmissionID)
		}
	}
}

func TestStreamUnknownSubmission(t *testing.T) {
	f := newFixture(t, 0)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/submissions/nope/stream", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
