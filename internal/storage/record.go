// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatstream/internal/util"
)

// Preview widths used by history listings.
const (
	QuestionPreviewWidth = 50
	DateLayout           = "2006-01-02"
)

// =============================================================================
// CONVERSATION RECORD
// =============================================================================

// ConversationRecord is one completed exchange. Records are never mutated
// after creation.
type ConversationRecord struct {
	ID           string    `json:"id"`
	SystemPrompt string    `json:"system_prompt"`
	Context      string    `json:"context"`
	Question     string    `json:"question"`
	Response     string    `json:"response"`
	Model        string    `json:"model,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRecordID returns a fresh record identifier.
func NewRecordID() string {
	return uuid.NewString()
}

// IsZero reports whether the record is the empty "no conversation" value.
func (r ConversationRecord) IsZero() bool {
	return r.Question == "" && r.Response == "" && r.Timestamp.IsZero()
}

// ContentHash identifies a record by its content: system prompt, context,
// question, response and timestamp. ID and Model do not participate, so two
// records that differ only in identity are duplicates.
func (r ConversationRecord) ContentHash() string {
	h := sha256.New()
	for _, field := range []string{r.SystemPrompt, r.Context, r.Question, r.Response} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(r.Timestamp.UnixNano()))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}

// QuestionPreview returns the question on one line, cut to 50 display columns.
func (r ConversationRecord) QuestionPreview() string {
	q := util.SingleLine(r.Question)
	if q == "" {
		return "No question"
	}
	return util.TruncateWidth(q, QuestionPreviewWidth)
}

// DateLabel returns the record date, or "Unknown" for a zero timestamp.
func (r ConversationRecord) DateLabel() string {
	if r.Timestamp.IsZero() {
		return "Unknown"
	}
	return r.Timestamp.Format(DateLayout)
}
