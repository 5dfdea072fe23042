// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversation records and the session history table.
//
// History lives in an in-memory SQLite database: it is gone when the process
// exits. Duplicate avoidance is a UNIQUE constraint on a content hash of the
// record, so appending the same record twice is a no-op.
//
// # Key Types
//
//   - ConversationRecord: one completed question/response exchange
//   - HistoryStore: insertion-ordered history backed by SQLite
//
// # Usage
//
//	store, err := storage.NewHistoryStore()
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	added, err := store.Append(ctx, record)
//	recent, err := store.Recent(ctx, 10)
package storage
