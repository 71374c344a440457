package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"server/internal/retry"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func fastRetry(maxRetries uint64) retry.Policy {
	return retry.Policy{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, policy retry.Policy) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "dummy",
		HTTPClient: &http.Client{Transport: rt},
		Retry:      policy,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("NewClient succeeded without api key")
	}
}

func TestGenerateTextReturnsCandidate(t *testing.T) {
	var gotPath string
	var gotKey string
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"[{\"title\":\"A\"}]"}]}}]}`), nil
	}, fastRetry(1))

	text, err := client.GenerateText(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if text != `[{"title":"A"}]` {
		t.Fatalf("text = %q", text)
	}
	if !strings.HasSuffix(gotPath, "/models/gemini-1.5-flash:generateContent") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "dummy" {
		t.Fatalf("api key header = %q", gotKey)
	}
}

func TestGenerateTextSendsZeroTemperature(t *testing.T) {
	var gotBody []byte
	temperature := 0.0
	client, err := NewClient(Options{
		APIKey:      "dummy",
		Temperature: &temperature,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			gotBody, _ = io.ReadAll(r.Body)
			return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`), nil
		})},
		Retry: fastRetry(1),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if _, err := client.GenerateText(context.Background(), "prompt"); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}

	var req struct {
		GenerationConfig struct {
			Temperature *float64 `json:"temperature"`
		} `json:"generationConfig"`
	}
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if req.GenerationConfig.Temperature == nil || *req.GenerationConfig.Temperature != 0 {
		t.Fatalf("temperature = %v, want explicit 0", req.GenerationConfig.Temperature)
	}
}

func TestGenerateTextRetriesServerErrors(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded"}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`), nil
	}, fastRetry(1))

	text, err := client.GenerateText(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if text != "ok" || calls != 2 {
		t.Fatalf("text = %q, calls = %d", text, calls)
	}
}

func TestGenerateTextDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusBadRequest, `{"error":{"code":400,"message":"bad prompt"}}`), nil
	}, fastRetry(3))

	_, err := client.GenerateText(context.Background(), "prompt")
	if err == nil {
		t.Fatal("GenerateText succeeded on 400")
	}
	if !strings.Contains(err.Error(), "bad prompt") {
		t.Fatalf("error %q does not carry the api message", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestGenerateTextEmptyCandidates(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[]}`), nil
	}, fastRetry(3))

	_, err := client.GenerateText(context.Background(), "prompt")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateTextNetworkErrorExhaustsRetries(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection reset")
	}, fastRetry(1))

	_, err := client.GenerateText(context.Background(), "prompt")
	if err == nil {
		t.Fatal("GenerateText succeeded despite network errors")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (initial + 1 retry)", calls)
	}
}
