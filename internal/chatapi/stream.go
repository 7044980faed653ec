// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxLineSize is the maximum allowed size for a single event line (64KB).
// A line longer than this indicates a misbehaving backend, not a token.
const MaxLineSize = 64 * 1024

// dataPrefix marks lines that carry an event payload. Lines without the
// prefix (comments, keep-alives, future field types) are ignored.
const dataPrefix = "data:"

// =============================================================================
// EVENT READER
// =============================================================================

// EventReader decodes discrete events from a server-sent-event style
// byte stream. Events are newline-delimited; a line beginning with
// "data:" carries a JSON payload. Partial lines spanning chunk
// boundaries are buffered by the underlying bufio.Reader and never
// surfaced, so re-chunking the same bytes at arbitrary boundaries
// produces the same event sequence.
type EventReader struct {
	reader *bufio.Reader
	logger *slog.Logger
}

// NewEventReader creates an event reader over r.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{
		reader: bufio.NewReader(r),
		logger: slog.Default().With("component", "chatapi"),
	}
}

// Next returns the next decoded event from the stream.
//
// Returns io.EOF when the stream ends. A trailing unterminated line at
// EOF is discarded: it is not a complete event and cannot be salvaged.
// A malformed payload on a single line is skipped (logged, not fatal);
// one bad event must not abort the stream.
func (r *EventReader) Next() (wireEvent, error) {
	for {
		raw, oversized, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				// Remainder without a newline is an incomplete event.
				return wireEvent{}, io.EOF
			}
			return wireEvent{}, err
		}
		if oversized {
			r.logger.Warn("oversized event line dropped", "limit_bytes", MaxLineSize)
			continue
		}

		line := strings.TrimRight(string(raw), "\r\n")
		if !strings.HasPrefix(line, dataPrefix) {
			// Forward-compatibility: ignore unknown framing lines.
			continue
		}

		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == "" {
			continue
		}

		var ev wireEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			r.logger.Debug("skipping malformed event payload", "error", err)
			continue
		}

		return ev, nil
	}
}

// readLine reads one newline-terminated line, retaining at most
// MaxLineSize bytes. The tail of an oversized line is consumed in
// fixed-size slices and discarded, so a misbehaving backend cannot make
// the reader hold an arbitrarily large line in memory.
func (r *EventReader) readLine() ([]byte, bool, error) {
	var (
		line      []byte
		oversized bool
	)
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > MaxLineSize {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch err {
		case nil:
			return line, oversized, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return line, oversized, err
		}
	}
}

// =============================================================================
// EVENT PUMP
// =============================================================================

// pumpEvents reads wire events from body and forwards them as tagged
// StreamEvents on out until done, error, or EOF.
//
// Termination semantics:
//   - a "done" wire event emits EventDone and stops reading;
//   - a read failure emits EventError exactly once;
//   - natural EOF without "done" emits nothing and closes the channel
//     (the stream is left pending; the caller decides what that means).
//
// EventDone and EventError are mutually exclusive by construction: the
// function returns immediately after emitting either.
func pumpEvents(body io.Reader, out chan<- StreamEvent) {
	reader := NewEventReader(body)

	for {
		ev, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return
			}
			out <- StreamEvent{Kind: EventError, Err: err}
			return
		}

		switch ev.Type {
		case wireTypeToken:
			out <- StreamEvent{Kind: EventToken, Content: ev.Content}
		case wireTypeDone:
			out <- StreamEvent{Kind: EventDone}
			return
		default:
			// Unknown event types are ignored for forward compatibility.
		}
	}
}
