package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"devlens/internal/pipeline"
	"devlens/internal/services"
)

var sampleTranscript = []pipeline.TranscriptLine{
	{Start: 0, End: 12, Text: "Hi everyone, thanks for joining."},
	{Start: 12, End: 48, Text: "The checkout button throws a null pointer when the cart is empty."},
}

func relevanceRequest() pipeline.RelevanceRequest {
	return pipeline.RelevanceRequest{Duration: 60, Keywords: []string{"checkout"}, Transcript: sampleTranscript}
}

func TestClientRelevanceCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": "```json\n{\"relevant_segments\":[{\"start\":12,\"end\":48}],\"technical_percentage\":80}\n```",
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	ranges, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if err != nil {
		t.Fatalf("AnalyzeRelevance returned error: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Start != 12 || ranges[0].End != 48 {
		t.Fatalf("unexpected ranges %+v", ranges)
	}
}

func TestClientRelevanceRequestShape(t *testing.T) {
	var got chatRequest
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Title") != "devlens" {
			t.Errorf("missing X-Title header")
		}
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.Unmarshal(body, &got)
		_ = json.Unmarshal(body, &raw)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"relevant_segments":[]}`}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "pro", RelevanceModel: "flash", Title: "devlens"})
	ranges, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if err != nil {
		t.Fatalf("AnalyzeRelevance returned error: %v", err)
	}
	if len(ranges) != 0 {
		t.Fatalf("expected no ranges, got %+v", ranges)
	}
	if got.Model != "flash" {
		t.Fatalf("expected relevance model, got %q", got.Model)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", got.ResponseFormat)
	}
	user, _ := got.Messages[1].Content.(string)
	if !strings.Contains(user, "[12.0-48.0] The checkout button") || !strings.Contains(user, "Context keywords: checkout") {
		t.Fatalf("unexpected user prompt %q", user)
	}
}

func TestClientRelevanceMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "I could not find anything useful."}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	_, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestClientRelevanceRequiresTranscript(t *testing.T) {
	client := NewClient(Config{APIKey: "test", Model: "demo-model"})
	_, err := client.AnalyzeRelevance(context.Background(), pipeline.RelevanceRequest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo-model"})
	if client.Enabled() {
		t.Fatal("client without key should report disabled")
	}
	_, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := client.GenerateSegment(context.Background(), pipeline.SegmentRequest{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": `{"relevant_segments":[{"start":1,"end":2}]}`,
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	ranges, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if err != nil {
		t.Fatalf("AnalyzeRelevance returned error: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected one range, got %+v", ranges)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = "Segment body with [Frame 1]."
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message": map[string]any{
						"content": content,
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	text, err := client.GenerateSegment(context.Background(), segmentRequest(t))
	if err != nil {
		t.Fatalf("GenerateSegment returned error: %v", err)
	}
	if text != "Segment body with [Frame 1]." {
		t.Fatalf("unexpected text %q", text)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func replyServer(t *testing.T, content string, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientPing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "plain", content: `{"ready":true}`},
		{name: "fenced", content: "```json\n{\"ready\":true}\n```"},
		{name: "not ready", content: `{"ready":false}`, wantErr: services.ErrExternalTool},
		{name: "prose", content: "I am ready.", wantErr: services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := replyServer(t, tt.content, nil)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
			err := client.Ping(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Ping returned error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientPingRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.Ping(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "http 401") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestClientPingDoesNotRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var slept int
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) { slept++ }),
	)
	if err := client.Ping(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 1 || slept != 0 {
		t.Fatalf("expected one attempt without sleeping, got calls=%d slept=%d", calls, slept)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	var calls int
	server := replyServer(t, "", &calls)
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	_, err := client.AnalyzeRelevance(context.Background(), relevanceRequest())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("exhausted retries should be transient, got %v", err)
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestBackoffDelayDoublesToCeiling(t *testing.T) {
	b := backoff{attempts: 6, base: time.Second, ceiling: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.delay(i + 1); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestDecodeLLMJSONNarrowsProse(t *testing.T) {
	var out struct {
		Ready bool `json:"ready"`
	}
	if err := DecodeLLMJSON("Sure! Here it is: {\"ready\":true} Let me know.", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !out.Ready {
		t.Fatal("expected ready")
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for blank payload")
	}
}
