// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

// sseServer returns a server that writes lines as an event stream and closes.
func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, line := range lines {
			fmt.Fprint(w, line+"\n")
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func deltaLine(text string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": text}}},
	})
	return "data: " + string(b)
}

func testRequest() CompletionRequest {
	return CompletionRequest{
		Model:       "m",
		Messages:    []ChatMessage{NewUserMessage("hi")},
		Temperature: 0.7,
		MaxTokens:   100,
		APIKey:      testKey,
	}
}

// drain collects all events until the stream ends or fails.
func drain(t *testing.T, s *Stream) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	for {
		ev, err := s.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// =============================================================================
// SUBMIT: SUCCESS PATHS
// =============================================================================

func TestSubmit_HelloExample(t *testing.T) {
	type captured struct {
		header http.Header
		body   map[string]any
	}
	capture := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		capture <- captured{header: r.Header.Clone(), body: body}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient().WithBaseURL(server.URL)
	stream, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)

	assert.Equal(t, "Hello", stream.Text())
	assert.True(t, stream.SawDone())
	require.Len(t, events, 3)
	assert.Equal(t, EventContentDelta, events[0].Kind)
	assert.Equal(t, EventDone, events[2].Kind)

	got := <-capture
	gotHeader, gotBody := got.header, got.body
	assert.Equal(t, "Bearer "+testKey, gotHeader.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, DefaultSiteURL, gotHeader.Get("HTTP-Referer"))
	assert.Equal(t, DefaultSiteName, gotHeader.Get("X-Title"))

	assert.Equal(t, "m", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])
	assert.Equal(t, 0.7, gotBody["temperature"])
	assert.Equal(t, float64(100), gotBody["max_tokens"])
	assert.NotContains(t, gotBody, "api_key")
	assert.NotContains(t, gotBody, "APIKey")

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[0])
}

func TestSubmit_ConcatenatesInArrivalOrder(t *testing.T) {
	fragments := []string{"The ", "quick ", "brown ", "fox", " ", "jumps", "\n", "ü", "✓"}
	lines := make([]string, 0, len(fragments)+1)
	for _, f := range fragments {
		lines = append(lines, deltaLine(f))
	}
	lines = append(lines, "data: [DONE]")
	server := sseServer(t, lines...)

	var seen []string
	text, err := NewClient().WithBaseURL(server.URL).Complete(context.Background(), testRequest(), func(s string) {
		seen = append(seen, s)
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Join(fragments, ""), text)
	assert.Equal(t, fragments, seen)
}

func TestSubmit_CloseWithoutSentinelIsNormal(t *testing.T) {
	server := sseServer(t, deltaLine("partial "), deltaLine("answer"))

	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "partial answer", stream.Text())
	assert.False(t, stream.SawDone())

	// Ended streams keep reporting io.EOF.
	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSubmit_FinalLineWithoutNewline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, deltaLine("a")+"\n"+deltaLine("b"))
	}))
	defer server.Close()

	text, err := NewClient().WithBaseURL(server.URL).Complete(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestSubmit_MalformedLineIsSkipped(t *testing.T) {
	server := sseServer(t,
		deltaLine("Hel"),
		"data: not-json",
		"",
		": OPENROUTER PROCESSING",
		"event: ping",
		deltaLine("lo"),
		"data: [DONE]",
	)

	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", stream.Text())

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventContentDelta, EventMalformed, EventContentDelta, EventDone}, kinds)
	assert.Equal(t, "not-json", events[1].Raw)
}

func TestSubmit_DataAfterSentinelIgnored(t *testing.T) {
	server := sseServer(t, deltaLine("done"), "data: [DONE]", deltaLine(" extra"))

	text, err := NewClient().WithBaseURL(server.URL).Complete(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestSubmit_CustomSiteHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer server.Close()

	client := NewClient().WithBaseURL(server.URL + "/").WithSiteURL("https://example.test").WithSiteName("Test App")
	_, err := client.Complete(context.Background(), testRequest(), nil)
	require.NoError(t, err)

	h := <-headers
	assert.Equal(t, "https://example.test", h.Get("HTTP-Referer"))
	assert.Equal(t, "Test App", h.Get("X-Title"))
}

func TestStream_EventsIterator(t *testing.T) {
	server := sseServer(t, deltaLine("a"), deltaLine("b"), deltaLine("c"), "data: [DONE]")

	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	var got []string
	for ev, err := range stream.Events() {
		require.NoError(t, err)
		if ev.Kind == EventContentDelta {
			got = append(got, ev.Text)
		}
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)

	// Breaking out of the loop closes the stream.
	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

// =============================================================================
// SUBMIT: FAILURE PATHS
// =============================================================================

func TestSubmit_EmptyKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	req := testRequest()
	req.APIKey = "   "
	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), req)

	assert.Nil(t, stream)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "api_key", ve.Field)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, int32(0), hits.Load())
}

func TestSubmit_EmptyMessages(t *testing.T) {
	req := testRequest()
	req.Messages = nil
	_, err := NewClient().WithBaseURL("http://127.0.0.1:1").Submit(context.Background(), req)
	assert.True(t, IsValidationError(err))
}

func TestSubmit_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		wantMsg  string
		wantCode string
	}{
		{"unauthorized envelope", 401, `{"error":{"code":401,"message":"No auth credentials found"}}`, ErrAuthFailed, "No auth credentials found", "401"},
		{"payment required", 402, `{"error":{"code":402,"message":"Insufficient credits"}}`, ErrInsufficientCredits, "Insufficient credits", "402"},
		{"unknown model", 404, `{"error":{"message":"Model not found"}}`, ErrModelNotFound, "Model not found", ""},
		{"rate limited", 429, `{"error":{"code":"rate_limit","message":"slow down"}}`, ErrRateLimited, "slow down", "rate_limit"},
		{"plain text 500", 500, `upstream exploded`, nil, "upstream exploded", ""},
		{"empty 503", 503, ``, nil, "Service Unavailable", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
			assert.Nil(t, stream, "no event sequence on non-2xx")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.body, apiErr.Body)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestSubmit_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient().WithBaseURL(url).Submit(context.Background(), testRequest())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.False(t, apiErr.Timeout())
}

func TestSubmit_MidStreamErrorPayload(t *testing.T) {
	server := sseServer(t,
		deltaLine("partial"),
		`data: {"error":{"code":502,"message":"provider returned error"}}`,
		deltaLine(" never"),
	)

	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.Error(t, err)
	assert.Len(t, events, 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "provider returned error", apiErr.Message)

	// The failure is sticky.
	_, again := stream.Next()
	assert.Equal(t, err, again)
}

func TestSubmit_ReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaLine("first")+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient().WithBaseURL(server.URL).WithReadTimeout(100 * time.Millisecond)
	stream, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	start := time.Now()
	events, err := drain(t, stream)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, events, 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Timeout())
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestSubmit_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient().WithBaseURL(server.URL).WithReadTimeout(100 * time.Millisecond)
	_, err := client.Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestSubmit_CancelStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaLine("first")+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewClient().WithBaseURL(server.URL).Submit(ctx, testRequest())
	require.NoError(t, err)

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Text)

	cancel()
	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)

	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled, "no further events after cancellation")
}

func TestStream_CloseFromAnotherGoroutine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaLine("first")+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	stream, err := NewClient().WithBaseURL(server.URL).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = stream.Next()
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		stream.Close()
	}()

	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoError(t, stream.Close())
}
