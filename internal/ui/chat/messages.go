// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/session"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg triggers a flush of buffered deltas into the view.
type StreamTickMsg struct {
	Time time.Time
}

// StreamCompleteMsg reports a finished submission.
type StreamCompleteMsg struct {
	Record session.ConversationRecord
	Stats  session.Stats
}

// StreamErrorMsg reports a failed or cancelled submission.
type StreamErrorMsg struct {
	Err error
}

// =============================================================================
// HISTORY MESSAGES
// =============================================================================

// HistoryLoadedMsg carries the most recent records, newest first.
type HistoryLoadedMsg struct {
	Records []session.ConversationRecord
	Err     error
}

// RecordLoadedMsg reports that a history record became current.
type RecordLoadedMsg struct {
	Record session.ConversationRecord
	Err    error
}

// =============================================================================
// ACTION MESSAGES
// =============================================================================

// ExportCompleteMsg reports the result of an export.
type ExportCompleteMsg struct {
	Path string
	Err  error
}

// CopyCompleteMsg reports the result of a clipboard copy.
type CopyCompleteMsg struct {
	Err error
}

// ConfigReloadedMsg delivers a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}

// clearNoticeMsg expires a notice; id guards against clearing a newer one.
type clearNoticeMsg struct {
	id int
}
