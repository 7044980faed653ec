// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// STREAMING BUFFER TESTS
// =============================================================================

func TestStreamingBufferDefaults(t *testing.T) {
	sb := NewStreamingBuffer()

	batchSize, maxFPS, minFlush := sb.GetConfig()
	if batchSize != 15 {
		t.Errorf("batch size = %d, want 15", batchSize)
	}
	if maxFPS != 30 {
		t.Errorf("maxFPS = %d, want 30", maxFPS)
	}
	if want := time.Duration(1000/30) * time.Millisecond; minFlush != want {
		t.Errorf("minFlush = %v, want %v", minFlush, want)
	}
	if sb.Pending() != 0 {
		t.Errorf("new buffer has %d pending tokens", sb.Pending())
	}
}

func TestStreamingBufferFlushBySize(t *testing.T) {
	sb := NewStreamingBufferWithConfig(3, 30)

	sb.Write("one")
	sb.Write(" two")
	if _, ok := sb.Flush(); ok {
		t.Fatal("flushed below the batch threshold")
	}

	sb.Write(" three")
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("did not flush at the batch threshold")
	}
	if content != "one two three" {
		t.Errorf("content = %q", content)
	}
	if sb.Pending() != 0 {
		t.Errorf("%d tokens pending after flush", sb.Pending())
	}
}

func TestStreamingBufferFlushByTime(t *testing.T) {
	// Batch size far above what we write, so only the fps deadline
	// can trigger the flush.
	sb := NewStreamingBufferWithConfig(1000, 30)

	sb.Write("slow token")
	if _, ok := sb.Flush(); ok {
		t.Fatal("flushed before the frame deadline")
	}

	time.Sleep(40 * time.Millisecond)

	content, ok := sb.Flush()
	if !ok {
		t.Fatal("did not flush after the frame deadline")
	}
	if content != "slow token" {
		t.Errorf("content = %q", content)
	}
}

func TestStreamingBufferForceFlush(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("tail")
	content, ok := sb.ForceFlush()
	if !ok || content != "tail" {
		t.Errorf("ForceFlush = %q, %v", content, ok)
	}

	// Empty buffer force-flush reports no content.
	if _, ok := sb.ForceFlush(); ok {
		t.Error("ForceFlush on empty buffer reported content")
	}
}

func TestStreamingBufferReset(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("a")
	sb.Write("b")
	sb.Reset()

	if sb.Pending() != 0 {
		t.Errorf("%d tokens pending after reset", sb.Pending())
	}
	if _, ok := sb.Flush(); ok {
		t.Error("flush after reset returned content")
	}
}

func TestStreamingBufferUnicode(t *testing.T) {
	sb := NewStreamingBuffer()

	for _, tok := range []string{"答え", "は", " 42 ", "です"} {
		sb.Write(tok)
	}

	content, ok := sb.ForceFlush()
	if !ok {
		t.Fatal("no content")
	}
	if content != "答えは 42 です" {
		t.Errorf("content = %q", content)
	}
}

func TestStreamingBufferSetters(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.SetBatchSize(20)
	sb.SetMaxFPS(60)

	batchSize, maxFPS, minFlush := sb.GetConfig()
	if batchSize != 20 {
		t.Errorf("batch size = %d, want 20", batchSize)
	}
	if maxFPS != 60 {
		t.Errorf("maxFPS = %d, want 60", maxFPS)
	}
	if want := time.Duration(1000/60) * time.Millisecond; minFlush != want {
		t.Errorf("minFlush = %v, want %v", minFlush, want)
	}
}

// Writer goroutine feeding tokens while the UI loop drains, the shape
// the orchestrator's OnToken callback produces. Run with -race.
func TestStreamingBufferConcurrentWriteAndFlush(t *testing.T) {
	sb := NewStreamingBufferWithConfig(5, 60)

	const tokenCount = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < tokenCount; i++ {
			sb.Write("x")
		}
	}()

	var got strings.Builder
	deadline := time.After(2 * time.Second)
	for got.Len() < tokenCount {
		select {
		case <-deadline:
			t.Fatalf("drained %d of %d tokens before timeout", got.Len(), tokenCount)
		default:
		}
		if content, ok := sb.ForceFlush(); ok {
			got.WriteString(content)
		}
	}
	wg.Wait()

	if got.Len() != tokenCount {
		t.Errorf("drained %d tokens, want %d", got.Len(), tokenCount)
	}
}

func TestStreamingBufferEndToEnd(t *testing.T) {
	sb := NewStreamingBufferWithConfig(4, 30)

	tokens := []string{"Go", " channels", " carry", " values", " between", " goroutines", "."}
	var assembled strings.Builder

	for _, tok := range tokens {
		sb.Write(tok)
		if sb.ShouldFlush() {
			if content, ok := sb.Flush(); ok {
				assembled.WriteString(content)
			}
		}
	}
	if content, ok := sb.ForceFlush(); ok {
		assembled.WriteString(content)
	}

	want := "Go channels carry values between goroutines."
	if assembled.String() != want {
		t.Errorf("assembled = %q, want %q", assembled.String(), want)
	}
}
