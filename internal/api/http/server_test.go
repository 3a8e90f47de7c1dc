package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/scriptq/internal/api"
	"github.com/Paintersrp/scriptq/internal/metrics"
)

type testReporter struct{}

func (t *testReporter) Status(stdcontext.Context) (*api.StatusReport, error) {
	return nil, nil
}

func TestNewServerRejectsTypedNilReporter(t *testing.T) {
	var reporter api.Reporter = (*testReporter)(nil)
	_, err := NewServer(Config{Reporter: reporter})
	if err == nil {
		t.Fatalf("expected error when reporter is typed nil")
	}
	if !strings.Contains(err.Error(), "testReporter") {
		t.Fatalf("expected error to describe typed nil reporter, got %v", err)
	}
	if _, err := NewServer(Config{}); err == nil {
		t.Fatalf("expected error when reporter is missing")
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           defaultAddr,
		":80":        "127.0.0.1:80",
		"0.0.0.0:80": "0.0.0.0:80",
		"[::]:80":    "[::]:80",
		"host:9000":  "host:9000",
		"[::1]:443":  "[::1]:443",
		"garbage":    "garbage",
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	reporter := &mockReporter{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{
				GeneratedAt:  time.Unix(123, 0),
				WaitStrategy: "cond",
				ReapMode:     "tracked",
				Signals:      []api.SignalReport{{Name: "SIGCHLD", Number: 17, Refcount: 2}},
				Children:     []api.ChildReport{{Pid: 4242, Owner: 1}},
			}, nil
		},
	}
	server := newTestServer(t, reporter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}

	var body api.StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if body.WaitStrategy != "cond" || body.ReapMode != "tracked" {
		t.Fatalf("unexpected modes: %+v", body)
	}
	if len(body.Signals) != 1 || body.Signals[0].Refcount != 2 {
		t.Fatalf("unexpected signals: %+v", body.Signals)
	}
	if len(body.Children) != 1 || body.Children[0].Pid != 4242 {
		t.Fatalf("unexpected children: %+v", body.Children)
	}
}

func TestHandleStatusError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{err: errors.New("boom"), code: http.StatusInternalServerError, name: "internal_error"},
		{err: api.ErrUnavailable, code: http.StatusServiceUnavailable, name: "unavailable"},
		{err: stdcontext.Canceled, code: 499, name: "context_canceled"},
	}
	for _, tc := range cases {
		reporter := &mockReporter{
			statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
				return nil, tc.err
			},
		}
		server := newTestServer(t, reporter)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		rec := httptest.NewRecorder()
		server.handleStatus(rec, req)

		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		var body errorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if body.Code != tc.name {
			t.Fatalf("expected %s code, got %q", tc.name, body.Code)
		}
		if _, ok := body.Details["timestamp"]; !ok {
			t.Fatalf("expected timestamp key in details")
		}
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockReporter{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header %q, got %q", http.MethodGet, allow)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockReporter{})

	metrics.IncrementForked()
	metrics.ObserveReaped(metrics.PathDirect)
	metrics.EmitBuildInfo()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "scriptq_children_forked_total") {
		t.Fatalf("expected forked counter, got:\n%s", body)
	}
	if !strings.Contains(body, `scriptq_children_reaped_total{path="direct"}`) {
		t.Fatalf("expected reaped counter by path, got:\n%s", body)
	}
	if !strings.Contains(body, "scriptq_build_info{") {
		t.Fatalf("expected metrics output to include build info, got:\n%s", body)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server, err := NewServer(Config{Reporter: &mockReporter{}, Listener: listener})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx)
	}()

	resp, err := http.Get("http://" + server.Addr() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz: %v", err)
	}
	payload, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(payload), `"ok"`) {
		cancel()
		t.Fatalf("unexpected health response %d: %s", resp.StatusCode, payload)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop after cancellation")
	}
}

type mockReporter struct {
	statusFn func(stdcontext.Context) (*api.StatusReport, error)
}

func (m *mockReporter) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &api.StatusReport{}, nil
}

func newTestServer(t *testing.T, reporter api.Reporter) *Server {
	t.Helper()
	server, err := NewServer(Config{Reporter: reporter})
	if err != nil {
		t.Fatalf("failed creating server: %v", err)
	}
	return server
}
