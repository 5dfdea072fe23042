// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"testing"
)

// =============================================================================
// STREAMING BUFFER TESTS
// =============================================================================

func TestNewStreamingBufferDefaults(t *testing.T) {
	batchSize, maxFPS := NewStreamingBuffer().limits()
	if batchSize != 15 {
		t.Errorf("Expected default batch size 15, got %d", batchSize)
	}
	if maxFPS != 30 {
		t.Errorf("Expected default maxFPS 30, got %d", maxFPS)
	}

	batchSize, maxFPS = NewStreamingBufferWithConfig(-1, 500).limits()
	if batchSize != 15 || maxFPS != 30 {
		t.Errorf("invalid config should fall back to defaults, got %d/%d", batchSize, maxFPS)
	}
}

func TestStreamingBufferFrameLimit(t *testing.T) {
	sb := NewStreamingBufferWithConfig(100, 1)

	sb.Write("A")
	content, ok := sb.Flush()
	if !ok || content != "A" {
		t.Fatalf("first frame should flush immediately, got %q, %v", content, ok)
	}

	sb.Write("B")
	if _, ok := sb.Flush(); ok {
		t.Error("second frame within the same second should be held back")
	}
	if sb.pending() != 1 {
		t.Errorf("Expected 1 pending delta, got %d", sb.pending())
	}

	content, ok = sb.ForceFlush()
	if !ok || content != "B" {
		t.Errorf("ForceFlush = %q, %v; want B, true", content, ok)
	}
}

func TestStreamingBufferFlushBySize(t *testing.T) {
	sb := NewStreamingBufferWithConfig(3, 1)
	sb.Write("x")
	sb.Flush() // spend the frame token

	sb.Write("A")
	sb.Write("B")
	if _, ok := sb.Flush(); ok {
		t.Error("Should not flush before reaching batch size")
	}

	sb.Write("C")
	content, ok := sb.Flush()
	if !ok || content != "ABC" {
		t.Errorf("Flush = %q, %v; want ABC, true", content, ok)
	}
	if sb.pending() != 0 {
		t.Errorf("Expected 0 pending after flush, got %d", sb.pending())
	}
}

func TestStreamingBufferEmptyAndReset(t *testing.T) {
	sb := NewStreamingBuffer()
	if _, ok := sb.Flush(); ok {
		t.Error("empty buffer should not flush")
	}
	if _, ok := sb.ForceFlush(); ok {
		t.Error("empty buffer should not force flush")
	}

	sb.Write("discard me")
	sb.Reset()
	if _, ok := sb.ForceFlush(); ok {
		t.Error("Reset should drop buffered content")
	}
}

func TestStreamingBufferConcurrentWrites(t *testing.T) {
	sb := NewStreamingBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sb.Write("x")
		}()
	}
	wg.Wait()

	content, _ := sb.ForceFlush()
	if len(content) != 50 {
		t.Errorf("expected 50 bytes, got %d", len(content))
	}
}

// =============================================================================
// CANCEL MANAGER TESTS
// =============================================================================

func TestCancelManager(t *testing.T) {
	cm := newCancelManager()
	if cm.cancel() {
		t.Error("cancel with nothing set should report false")
	}

	first, cancelFirst := context.WithCancel(context.Background())
	cm.set(cancelFirst)
	second, cancelSecond := context.WithCancel(context.Background())
	cm.set(cancelSecond)
	if first.Err() == nil {
		t.Error("replacing the cancel func should cancel the previous context")
	}

	if !cm.cancel() {
		t.Error("cancel should report true")
	}
	if second.Err() == nil {
		t.Error("cancel should cancel the current context")
	}
	if cm.cancel() {
		t.Error("second cancel should be a no-op")
	}
}
