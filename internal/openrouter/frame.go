// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import (
	"encoding/json"
	"strings"
)

// DoneSentinel is the payload that marks the end of a stream.
const DoneSentinel = "[DONE]"

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind identifies a StreamEvent variant.
type EventKind int

const (
	EventContentDelta EventKind = iota + 1 // incremental text fragment
	EventDone                              // end-of-stream sentinel
	EventMalformed                         // data line that could not be decoded
)

// String returns a short name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventContentDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// StreamEvent is one decoded frame from the server stream.
type StreamEvent struct {
	Kind EventKind
	Text string // fragment for EventContentDelta
	Raw  string // offending payload for EventMalformed
}

// =============================================================================
// LINE PARSER
// =============================================================================

// ParseState is the state a LineParser is left in after its last line.
type ParseState int

const (
	StateAwaitingLine ParseState = iota // nothing fed yet
	StateParsedDelta                    // data line decoded as a chunk
	StateSentinel                       // [DONE] seen; terminal
	StateMalformed                      // data line that was not a chunk
	StateSkipped                        // blank, comment or non-data field
	StateFaulted                        // error payload received; terminal
)

// String returns a short name for the state.
func (s ParseState) String() string {
	switch s {
	case StateAwaitingLine:
		return "awaiting-line"
	case StateParsedDelta:
		return "parsed-delta"
	case StateSentinel:
		return "sentinel"
	case StateMalformed:
		return "malformed"
	case StateSkipped:
		return "skipped"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// LineParser turns server-sent-event lines into StreamEvents.
// It holds no I/O and can be driven directly from tests.
type LineParser struct {
	state     ParseState
	lines     int
	deltas    int
	malformed int
	finish    string
}

// NewLineParser returns a parser waiting for its first line.
func NewLineParser() *LineParser {
	return &LineParser{state: StateAwaitingLine}
}

// State returns the state after the most recent Feed.
func (p *LineParser) State() ParseState {
	return p.state
}

// Terminated reports whether the sentinel or an error payload has been seen.
func (p *LineParser) Terminated() bool {
	return p.state == StateSentinel || p.state == StateFaulted
}

// Stats returns the number of lines, content deltas and malformed frames seen.
func (p *LineParser) Stats() (lines, deltas, malformed int) {
	return p.lines, p.deltas, p.malformed
}

// FinishReason returns the last finish_reason reported by the stream.
func (p *LineParser) FinishReason() string {
	return p.finish
}

// Feed consumes one line (with or without its trailing newline).
// emit is false when the line produces no event: blank lines, comments, other
// SSE fields and chunks without content. A non-nil error means the stream
// carried an error payload and must stop. Lines fed after termination are ignored.
func (p *LineParser) Feed(line string) (ev StreamEvent, emit bool, err error) {
	if p.Terminated() {
		return StreamEvent{}, false, nil
	}
	p.lines++

	line = strings.TrimRight(line, "\r\n")
	payload, isData := dataPayload(line)
	if !isData {
		p.state = StateSkipped
		return StreamEvent{}, false, nil
	}

	if payload == DoneSentinel {
		p.state = StateSentinel
		return StreamEvent{Kind: EventDone}, true, nil
	}

	if fault := decodeFault(payload); fault != nil {
		p.state = StateFaulted
		return StreamEvent{}, false, fault
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		p.state = StateMalformed
		p.malformed++
		return StreamEvent{Kind: EventMalformed, Raw: payload}, true, nil
	}

	p.state = StateParsedDelta
	if reason := chunk.FinishReason(); reason != "" {
		p.finish = reason
	}
	content, ok := chunk.Content()
	if !ok || content == "" {
		return StreamEvent{}, false, nil
	}
	p.deltas++
	return StreamEvent{Kind: EventContentDelta, Text: content}, true, nil
}

// dataPayload extracts the payload of a "data:" field. A single space after the
// colon is part of the framing and is stripped.
func dataPayload(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, " ")
	return strings.TrimSpace(rest), true
}

// decodeFault returns an *APIError when payload is an OpenRouter error object.
func decodeFault(payload string) *APIError {
	if !strings.Contains(payload, `"error"`) {
		return nil
	}
	var env apiErrorEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Error == nil {
		return nil
	}
	msg := env.Error.Message
	if msg == "" {
		msg = "stream reported an error"
	}
	return &APIError{Code: env.code(), Message: msg, Body: payload}
}
