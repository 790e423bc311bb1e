package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// KeyPrefix marks every key written by the canary.
const KeyPrefix = "__canary__"

const maxErrorBody = 4 << 10

// Outcome is the classified result of one probe. A nil Err means success.
type Outcome struct {
	Latency time.Duration
	Err     error
}

// OK reports whether the probe succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Reason returns the failure description, or "" on success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Result is an Outcome plus human-readable renderings of the probe payload.
type Result struct {
	Outcome
	Key   string
	Value string
}

type putRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type getResponse struct {
	Value *string `json:"value"`
}

// Executor runs put/get round trips against a single key-value server.
type Executor struct {
	baseURL string
	client  HTTPDoer
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// NewExecutor returns an executor for the server at baseURL
// (e.g. http://localhost:8000). A trailing slash is ignored.
func NewExecutor(baseURL string, opts ...Option) *Executor {
	e := &Executor{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute writes a fresh canary key, reads it back and compares the value.
// Every failure is reported through the returned Outcome; Execute never panics
// on an unreachable or misbehaving target.
func (e *Executor) Execute(ctx context.Context) Result {
	start := time.Now()

	key, err := newKey()
	if err != nil {
		return Result{Outcome: Outcome{Latency: time.Since(start), Err: fmt.Errorf("generate key: %w", err)}}
	}
	value := []byte(strconv.FormatInt(e.now().UnixMilli(), 10))
	res := Result{Key: Display(key), Value: Display(value)}

	res.Err = e.roundTrip(ctx, key, value)
	res.Latency = time.Since(start)
	return res
}

func (e *Executor) roundTrip(ctx context.Context, key, value []byte) error {
	keyB64 := base64.StdEncoding.EncodeToString(key)
	valueB64 := base64.StdEncoding.EncodeToString(value)

	e.log.Debug("canary probe: put", "key", Display(key), "value", Display(value), "target", e.baseURL)
	body, err := sonic.Marshal(putRequest{Key: keyB64, Value: valueB64})
	if err != nil {
		return fmt.Errorf("encode put body: %w", err)
	}
	if err := e.put(ctx, body); err != nil {
		return err
	}

	e.log.Debug("canary probe: get", "key", Display(key))
	encoded, err := e.get(ctx, keyB64)
	if err != nil {
		return err
	}
	if encoded == nil {
		e.log.Warn("canary probe: get returned no value", "key", Display(key))
		return ErrNoValue
	}
	got, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		e.log.Error("canary probe: undecodable value", "key", Display(key), "error", err)
		return fmt.Errorf("decode value: %w", err)
	}
	if !bytes.Equal(got, value) {
		e.log.Warn("canary probe: value mismatch", "got", Display(got), "expected", Display(value))
		return ErrValueMismatch
	}
	e.log.Debug("canary probe: get returned value (match)", "value", Display(got))
	return nil
}

func (e *Executor) put(ctx context.Context, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, e.baseURL+"/put", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("canary probe: put failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if err := e.checkStatus(http.MethodPut, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (e *Executor) get(ctx context.Context, keyB64 string) (*string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	target := e.baseURL + "/get?key=" + url.QueryEscape(keyB64)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("canary probe: get failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if err := e.checkStatus(http.MethodGet, resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log.Error("canary probe: read get response", "error", err)
		return nil, fmt.Errorf("read get response: %w", err)
	}
	var payload getResponse
	if err := sonic.Unmarshal(data, &payload); err != nil {
		e.log.Error("canary probe: parse get response", "error", err)
		return nil, fmt.Errorf("parse get response: %w", err)
	}
	return payload.Value, nil
}

// checkStatus turns a non-2xx response into a StatusError, logging the body.
func (e *Executor) checkStatus(method string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{Code: resp.StatusCode, Reason: reasonPhrase(resp)}
	e.log.Error("canary probe: unexpected status",
		"method", method,
		"status", statusErr.Code,
		"reason", statusErr.Reason,
		"body", string(body),
	)
	return statusErr
}

func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if phrase := strings.TrimPrefix(resp.Status, prefix); phrase != resp.Status && phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}

func newKey() ([]byte, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return nil, err
	}
	return []byte(KeyPrefix + hex.EncodeToString(suffix[:])), nil
}
