// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// streamBufferSize is the initial read buffer for a stream body.
const streamBufferSize = 64 * 1024

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends req to the chat completions endpoint and returns the event stream.
//
// Submit blocks until response headers arrive. A non-2xx status returns an
// *APIError carrying the status and body, and no stream. A missing API key or
// an empty message list returns a *ValidationError without network I/O.
//
// The caller must consume the stream to io.EOF or Close it. Cancelling ctx
// closes the connection.
func (c *Client) Submit(ctx context.Context, req CompletionRequest) (*Stream, error) {
	if err := req.checkTransport(); err != nil {
		return nil, err
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		parent:      ctx,
		cancel:      cancel,
		parser:      NewLineParser(),
		model:       req.Model,
		readTimeout: c.readTimeout,
		verbose:     c.verbose,
		started:     time.Now(),
	}

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, req.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.logRequest(httpReq, req.APIKey)
	log.Printf("STREAM_START | model=%s messages=%d temperature=%.2f max_tokens=%d",
		req.Model, len(req.Messages), req.Temperature, req.MaxTokens)

	s.armTimer()
	resp, err := c.streamHTTP.Do(httpReq)
	s.disarmTimer()

	// SECURITY: Clear Authorization header so the request can't leak it later
	httpReq.Header.Del("Authorization")

	if err != nil {
		cancel()
		return nil, s.classify(err, "request failed")
	}
	c.logResponse(resp, time.Since(s.started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newStatusError(resp.StatusCode, raw)
		log.Printf("STREAM_REJECTED | model=%s status=%d code=%s", req.Model, resp.StatusCode, apiErr.Code)
		return nil, apiErr
	}

	s.body = resp.Body
	s.reader = bufio.NewReaderSize(resp.Body, streamBufferSize)
	return s, nil
}

// Complete submits req and drains the stream, calling onDelta for every
// fragment. It returns the concatenated text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest, onDelta func(string)) (string, error) {
	stream, err := c.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	for ev, err := range stream.Events() {
		if err != nil {
			return "", err
		}
		if ev.Kind == EventContentDelta && onDelta != nil {
			onDelta(ev.Text)
		}
	}
	return stream.Text(), nil
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is the lazy event sequence of one submission. It is not resumable:
// once it ends, fails or is closed, Next keeps returning the same result.
//
// Next must be called from a single goroutine; Close may be called from any.
type Stream struct {
	parent context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *bufio.Reader
	parser *LineParser

	text  strings.Builder
	model string

	readTimeout time.Duration
	timer       *time.Timer
	timedOut    atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once

	sawDone  bool
	finished bool
	err      error

	verbose bool
	started time.Time
}

// Next returns the next event. It returns io.EOF once the stream has ended
// normally: after the [DONE] sentinel or when the server closes the connection.
func (s *Stream) Next() (StreamEvent, error) {
	for {
		if s.finished {
			return StreamEvent{}, io.EOF
		}
		if s.err != nil {
			return StreamEvent{}, s.err
		}
		if s.closed.Load() {
			return StreamEvent{}, ErrStreamClosed
		}

		line, readErr := s.readLine()
		if line != "" {
			ev, emit, fault := s.parser.Feed(line)
			if fault != nil {
				return StreamEvent{}, s.fail(fault)
			}
			if emit {
				switch ev.Kind {
				case EventContentDelta:
					s.text.WriteString(ev.Text)
				case EventDone:
					s.sawDone = true
					s.finish()
				case EventMalformed:
					if s.verbose {
						log.Printf("STREAM_MALFORMED | model=%s payload=%q", s.model, truncate(ev.Raw, 120))
					}
				}
				return ev, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.finish()
				return StreamEvent{}, io.EOF
			}
			return StreamEvent{}, s.fail(s.classify(readErr, "stream read failed"))
		}
	}
}

// Events adapts the stream to a range-over-func sequence. Iteration stops at
// the end of the stream; a failure is yielded once as the error value. The
// stream is closed when iteration stops.
func (s *Stream) Events() iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		defer s.Close()
		for {
			ev, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(StreamEvent{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Text returns the concatenation of every content delta received so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// SawDone reports whether the stream ended with the [DONE] sentinel.
func (s *Stream) SawDone() bool {
	return s.sawDone
}

// FinishReason returns the finish_reason reported by the server, if any.
func (s *Stream) FinishReason() string {
	return s.parser.FinishReason()
}

// Close aborts the stream and releases the connection. It is safe to call
// more than once and from another goroutine than the one calling Next.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.disarmTimer()
		s.cancel()
		if s.body != nil {
			err = s.body.Close()
		}
	})
	return err
}

// readLine reads one line under the per-chunk read timeout. A final line
// without a trailing newline is returned together with io.EOF.
func (s *Stream) readLine() (string, error) {
	s.armTimer()
	line, err := s.reader.ReadString('\n')
	s.disarmTimer()
	return line, err
}

// finish records a normal end of stream.
func (s *Stream) finish() {
	if s.finished {
		return
	}
	s.finished = true
	_, deltas, malformed := s.parser.Stats()
	log.Printf("STREAM_COMPLETE | model=%s chars=%d deltas=%d malformed=%d sentinel=%t duration=%s",
		s.model, s.text.Len(), deltas, malformed, s.sawDone, time.Since(s.started).Round(time.Millisecond))
	s.Close()
}

// fail records a terminal error.
func (s *Stream) fail(err error) error {
	s.err = err
	if errors.Is(err, ErrStreamClosed) || errors.Is(err, context.Canceled) {
		log.Printf("STREAM_CANCELLED | model=%s chars=%d", s.model, s.text.Len())
	} else {
		log.Printf("STREAM_ERROR | model=%s chars=%d error=%q", s.model, s.text.Len(), err.Error())
	}
	s.Close()
	return err
}

// classify maps a transport error to the error the caller sees. Caller
// cancellation surfaces as the context error; everything else is an *APIError.
func (s *Stream) classify(err error, msg string) error {
	switch {
	case s.closed.Load():
		return ErrStreamClosed
	case s.parent.Err() != nil:
		return s.parent.Err()
	case s.timedOut.Load():
		return &APIError{
			Message: fmt.Sprintf("no data received for %s", s.readTimeout),
			Err:     ErrReadTimeout,
		}
	default:
		return newTransportError(msg, err)
	}
}

// =============================================================================
// READ TIMER
// =============================================================================

// armTimer starts (or restarts) the per-chunk deadline.
func (s *Stream) armTimer() {
	if s.readTimeout <= 0 {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.readTimeout, s.expire)
		return
	}
	s.timer.Reset(s.readTimeout)
}

// disarmTimer stops the deadline without firing it.
func (s *Stream) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// expire cancels the request when a read stalls.
func (s *Stream) expire() {
	s.timedOut.Store(true)
	s.cancel()
}

// truncate shortens s for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
