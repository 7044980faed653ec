// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types used throughout the application
// for representing sessions, messages, and session list grouping.
//
// # Key Types
//
//   - Session: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, timestamp, and metadata
//   - Role: Message role enumeration (user, assistant)
//   - LoadState: Tri-state lazy-load marker for a session's message history
//
// # Duplicate Suppression
//
// Messages written optimistically to memory and later echoed back by the
// durable backend carry different ids, so identity matching cannot detect
// the duplicate. IsDuplicate implements the heuristic used on merge: same
// role, identical content, and timestamps within a tolerance window.
package model
