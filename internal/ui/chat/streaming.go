// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"
)

// Stream rendering defaults.
const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
	streamTickEvery  = time.Second / defaultMaxFPS
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches deltas between renders. Content is released when
// either batchSize deltas have accumulated or the frame limiter allows a
// frame, which caps re-rendering at maxFPS however fast deltas arrive.
//
// Write is called from the submission goroutine; Flush from the Bubble Tea
// loop.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	tokenCount int

	batchSize int
	maxFPS    int
	limiter   *rate.Limiter
}

// NewStreamingBuffer creates a buffer flushing every 15 deltas or at 30fps.
func NewStreamingBuffer() *StreamingBuffer {
	return NewStreamingBufferWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewStreamingBufferWithConfig creates a streaming buffer with custom settings.
// Out-of-range values fall back to the defaults.
func NewStreamingBufferWithConfig(batchSize, maxFPS int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &StreamingBuffer{
		batchSize: batchSize,
		maxFPS:    maxFPS,
		limiter:   rate.NewLimiter(rate.Limit(maxFPS), 1),
	}
}

// Write appends one delta.
func (sb *StreamingBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(delta)
	sb.tokenCount++
}

// Flush returns the buffered content if a frame is due.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.tokenCount < sb.batchSize && !sb.limiter.Allow() {
		return "", false
	}
	return sb.drainLocked(), true
}

// ForceFlush returns everything buffered regardless of the frame limit. The
// model drains the tail of a stream with it when the stream completes.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.drainLocked(), true
}

// Reset discards buffered content.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.tokenCount = 0
}

// pending returns the number of deltas waiting to be flushed.
func (sb *StreamingBuffer) pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.tokenCount
}

// limits returns the batch size and frame cap in effect.
func (sb *StreamingBuffer) limits() (batchSize, maxFPS int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.batchSize, sb.maxFPS
}

func (sb *StreamingBuffer) drainLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.tokenCount = 0
	return content
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd schedules the next StreamTickMsg.
func streamTickCmd() tea.Cmd {
	return tea.Tick(streamTickEvery, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
