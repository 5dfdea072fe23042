// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the chatstream packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateWidth: display-width truncation for terminal columns
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - StringWidth: display width using East Asian width tables
//   - WordCount: whitespace-separated word count for response stats
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	preview := util.TruncateWidth(record.Question, 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
