package probe_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"kvcanary/internal/probe"
)

// kvServer is an in-memory stand-in for the target's /put and /get API.
type kvServer struct {
	mu      sync.Mutex
	data    map[string]string
	puts    int
	gets    int
	mutate  func(value string) *string
	putCode int
}

func newKVServer(t *testing.T) (*kvServer, *httptest.Server) {
	t.Helper()
	kv := &kvServer{data: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(kv.serve))
	t.Cleanup(srv.Close)
	return kv, srv
}

func (kv *kvServer) serve(w http.ResponseWriter, r *http.Request) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/put":
		kv.puts++
		if kv.putCode != 0 {
			w.WriteHeader(kv.putCode)
			_, _ = io.WriteString(w, "disk full")
			return
		}
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kv.data[body.Key] = body.Value
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Path == "/get":
		kv.gets++
		value, ok := kv.data[r.URL.Query().Get("key")]
		var out *string
		if ok {
			out = &value
		}
		if kv.mutate != nil {
			out = kv.mutate(value)
		}
		w.Header().Set("Content-Type", "application/json")
		if out == nil {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": *out})
	default:
		http.NotFound(w, r)
	}
}

func (kv *kvServer) counts() (puts, gets int) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.puts, kv.gets
}

func (kv *kvServer) stored(key string) string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.data[key]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteSuccess(t *testing.T) {
	kv, srv := newKVServer(t)
	now := time.UnixMilli(1_712_345_678_901)

	exec := probe.NewExecutor(srv.URL+"/", probe.WithHTTPClient(srv.Client()), probe.WithLogger(quietLogger()),
		probe.WithClock(func() time.Time { return now }))
	res := exec.Execute(context.Background())

	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Reason() != "" {
		t.Fatalf("expected empty reason, got %q", res.Reason())
	}
	if res.Latency < 0 {
		t.Fatalf("negative latency %v", res.Latency)
	}
	if res.Value != strconv.FormatInt(now.UnixMilli(), 10) {
		t.Fatalf("value display = %q", res.Value)
	}
	if !strings.HasPrefix(res.Key, probe.KeyPrefix) || len(res.Key) != len(probe.KeyPrefix)+16 {
		t.Fatalf("unexpected key %q", res.Key)
	}
	if puts, gets := kv.counts(); puts != 1 || gets != 1 {
		t.Fatalf("expected one put and one get, got %d/%d", puts, gets)
	}

	stored := kv.stored(base64.StdEncoding.EncodeToString([]byte(res.Key)))
	decoded, _ := base64.StdEncoding.DecodeString(stored)
	if string(decoded) != res.Value {
		t.Fatalf("server stored %q, want %q", decoded, res.Value)
	}
}

func TestExecuteUsesFreshKeys(t *testing.T) {
	_, srv := newKVServer(t)
	exec := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger()))

	first := exec.Execute(context.Background())
	second := exec.Execute(context.Background())
	if first.Key == second.Key {
		t.Fatalf("expected distinct keys, both were %q", first.Key)
	}
}

func TestExecuteFailures(t *testing.T) {
	t.Run("missing value", func(t *testing.T) {
		kv, srv := newKVServer(t)
		kv.mutate = func(string) *string { return nil }

		res := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger())).Execute(context.Background())
		if !errors.Is(res.Err, probe.ErrNoValue) {
			t.Fatalf("expected ErrNoValue, got %v", res.Err)
		}
		if res.Reason() != "get returned no value" {
			t.Fatalf("reason = %q", res.Reason())
		}
	})

	t.Run("value mismatch", func(t *testing.T) {
		kv, srv := newKVServer(t)
		kv.mutate = func(string) *string {
			other := base64.StdEncoding.EncodeToString([]byte("0"))
			return &other
		}

		res := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger())).Execute(context.Background())
		if !errors.Is(res.Err, probe.ErrValueMismatch) {
			t.Fatalf("expected ErrValueMismatch, got %v", res.Err)
		}
		if res.Reason() != "value mismatch" {
			t.Fatalf("reason = %q", res.Reason())
		}
	})

	t.Run("non-2xx status", func(t *testing.T) {
		kv, srv := newKVServer(t)
		kv.putCode = http.StatusServiceUnavailable

		res := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger())).Execute(context.Background())
		var statusErr *probe.StatusError
		if !errors.As(res.Err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", res.Err)
		}
		if statusErr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", statusErr.Code)
		}
		if res.Reason() != "HTTP 503 Service Unavailable" {
			t.Fatalf("reason = %q", res.Reason())
		}
		if strings.Contains(res.Reason(), "disk full") {
			t.Fatal("response body must not leak into the reason")
		}
		if _, gets := kv.counts(); gets != 0 {
			t.Fatal("get must not run after a failed put")
		}
	})

	t.Run("undecodable value", func(t *testing.T) {
		kv, srv := newKVServer(t)
		kv.mutate = func(string) *string {
			bad := "%%%"
			return &bad
		}

		res := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger())).Execute(context.Background())
		if res.OK() || res.Reason() == "" {
			t.Fatalf("expected decode failure, got %+v", res)
		}
	})

	t.Run("unreachable target", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		res := probe.NewExecutor(addr, probe.WithLogger(quietLogger())).Execute(context.Background())
		if res.OK() {
			t.Fatal("expected failure against a closed server")
		}
		if res.Reason() == "" {
			t.Fatal("expected a non-empty reason")
		}
		if res.Latency < 0 {
			t.Fatalf("negative latency %v", res.Latency)
		}
		if res.Key == "" || res.Value == "" {
			t.Fatal("display strings should be populated on transport failure")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		res := probe.NewExecutor(srv.URL, probe.WithLogger(quietLogger()),
			probe.WithTimeout(50*time.Millisecond)).Execute(context.Background())
		if !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", res.Err)
		}
		if res.Latency < 50*time.Millisecond {
			t.Fatalf("latency %v shorter than the timeout", res.Latency)
		}
	})
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{in: []byte("__canary__0a1b"), want: "__canary__0a1b"},
		{in: []byte("1712345678901"), want: "1712345678901"},
		{in: []byte{0x00, 'a'}, want: `"\x00a"`},
		{in: []byte("tab\there"), want: `"tab\there"`},
		{in: []byte{0xff}, want: `"\xff"`},
	}
	for _, tc := range tests {
		if got := probe.Display(tc.in); got != tc.want {
			t.Errorf("Display(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
