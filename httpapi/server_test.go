package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/termsync/schema"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	registry := NewRegistry()
	registry.Add(schema.Terminal{ID: "a", Name: "shell", WindowID: "w1", TabID: "t1", Rows: 3}, "line1\nline2\nline3\n$ ")
	srv := NewServer(cfg, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var payload map[string]any
	_ = json.Unmarshal(data, &payload)
	return resp.StatusCode, payload, data
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestHealth(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	status, payload, _ := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if status != http.StatusOK || payload["status"] != "healthy" || payload["connected_to_iterm2"] != true {
		t.Fatalf("unexpected health %d %v", status, payload)
	}
	srv.Registry().SetConnected(false)
	_, payload, _ = doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if payload["connected_to_iterm2"] != false {
		t.Fatalf("expected disconnected health, got %v", payload)
	}
}

func TestListTerminals(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, _, body := doJSON(t, http.MethodGet, ts.URL+"/api/terminals", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	var terminals []schema.Terminal
	if err := json.Unmarshal(body, &terminals); err != nil {
		t.Fatalf("decode terminals: %v", err)
	}
	if len(terminals) != 1 || terminals[0].ID != "a" || terminals[0].Columns != 80 {
		t.Fatalf("unexpected terminals %+v", terminals)
	}
}

func TestContent(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, _, body := doJSON(t, http.MethodGet, ts.URL+"/api/terminals/a/content", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	var content schema.TerminalContent
	if err := json.Unmarshal(body, &content); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if content.Content != "line1\nline2\nline3\n$ " {
		t.Fatalf("unexpected content %q", content.Content)
	}
	if content.VisibleContent != "line2\nline3\n$ " || !content.HasMoreHistory {
		t.Fatalf("unexpected visible content %+v", content)
	}
	if content.CursorPosition != (schema.CursorPosition{X: 2, Y: 2}) {
		t.Fatalf("unexpected cursor %+v", content.CursorPosition)
	}

	status, payload, _ := doJSON(t, http.MethodGet, ts.URL+"/api/terminals/missing/content", "")
	if status != http.StatusNotFound || payload["detail"] != "Terminal not found" {
		t.Fatalf("unexpected not found response %d %v", status, payload)
	}
}

func TestCommandErrors(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "empty command", path: "/api/terminals/a/command", body: `{"command":""}`, status: http.StatusBadRequest},
		{name: "unknown terminal", path: "/api/terminals/missing/command", body: `{"command":"ls"}`, status: http.StatusBadRequest},
		{name: "mismatched id", path: "/api/terminals/a/command", body: `{"terminal_id":"b","command":"ls"}`, status: http.StatusBadRequest},
		{name: "malformed body", path: "/api/terminals/a/command", body: `{`, status: http.StatusBadRequest},
		{name: "missing body", path: "/api/terminals/a/command", body: ``, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload, _ := doJSON(t, http.MethodPost, ts.URL+tc.path, tc.body)
			if status != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, status)
			}
			if detail, _ := payload["detail"].(string); detail == "" {
				t.Fatalf("expected detail, got %v", payload)
			}
		})
	}

	srv.Registry().SetConnected(false)
	status, payload, _ := doJSON(t, http.MethodPost, ts.URL+"/api/terminals/a/command", `{"command":"ls"}`)
	if status != http.StatusServiceUnavailable || payload["detail"] != "iTerm2 not connected" {
		t.Fatalf("unexpected disconnected response %d %v", status, payload)
	}
}

func TestCommandPushesOutput(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/terminals/a"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, time.Second, func() bool { return srv.Hub().Subscribers("a") == 1 })

	status, payload, _ := doJSON(t, http.MethodPost, ts.URL+"/api/terminals/a/command", `{"command":"ls"}`)
	if status != http.StatusOK || payload["success"] != true {
		t.Fatalf("unexpected command response %d %v", status, payload)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	update, err := schema.DecodeTerminalUpdate(frame)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	out, err := update.Output()
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if update.TerminalID != "a" || out.Content != "line3\n$ ls\n" {
		t.Fatalf("unexpected update %+v %q", update, out.Content)
	}
	if out.Cursor != (schema.CursorPosition{X: 0, Y: 2}) {
		t.Fatalf("unexpected cursor %+v", out.Cursor)
	}

	content, ok, err := srv.Registry().Content("a")
	if err != nil || !ok {
		t.Fatalf("content: %v %v", ok, err)
	}
	if !strings.HasSuffix(content.Content, "$ ls\n") {
		t.Fatalf("expected command appended, got %q", content.Content)
	}
}

func TestCommandWithoutNewline(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	status, _, _ := doJSON(t, http.MethodPost, ts.URL+"/api/terminals/a/command", `{"command":"echo","newline":false}`)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	content, _, _ := srv.Registry().Content("a")
	if !strings.HasSuffix(content.Content, "$ echo") {
		t.Fatalf("expected no newline, got %q", content.Content)
	}
}

func TestRosterStreamSendsPeriodically(t *testing.T) {
	srv, ts := newTestServer(t, Config{RosterInterval: 20 * time.Millisecond})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/terminals"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() []schema.Terminal {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read roster: %v", err)
		}
		msg, err := schema.DecodeRosterMessage(frame)
		if err != nil {
			t.Fatalf("decode roster: %v", err)
		}
		terminals, err := msg.Terminals()
		if err != nil {
			t.Fatalf("decode terminals: %v", err)
		}
		return terminals
	}

	if got := read(); len(got) != 1 {
		t.Fatalf("expected initial roster of 1, got %d", len(got))
	}
	srv.Registry().Add(schema.Terminal{ID: "b", Name: "logs"}, "")
	waitFor(t, 2*time.Second, func() bool { return len(read()) == 2 })
}

func TestRequestIDHeader(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(requestIDHeader, "abc")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "abc" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded", remote: "10.0.0.1:5555", forwarded: "192.0.2.7, 10.0.0.1", want: "192.0.2.7"},
		{name: "bare", remote: "pipe", want: "pipe"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = tc.remote
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("%s: clientIP = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRegistrySeed(t *testing.T) {
	registry := NewRegistry()
	seeded := registry.Seed(3)
	if len(seeded) != 3 {
		t.Fatalf("expected 3 terminals, got %d", len(seeded))
	}
	for _, terminal := range seeded {
		if err := schema.ValidateTerminalID(terminal.ID); err != nil {
			t.Fatalf("invalid seeded id %q", terminal.ID)
		}
	}
	if !registry.Remove(seeded[0].ID) || registry.Remove(seeded[0].ID) {
		t.Fatalf("expected remove to succeed once")
	}
	terminals, err := registry.List()
	if err != nil || len(terminals) != 2 {
		t.Fatalf("expected 2 terminals, got %d (%v)", len(terminals), err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, ready func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ready() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition")
}
