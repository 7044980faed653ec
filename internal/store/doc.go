// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns chat session persistence and the canonical in-memory
// session state.
//
// Two backends implement the Backend interface:
//
//   - SQLiteBackend: durable per-user storage in a local SQLite database.
//   - GuestBackend: the whole session list serialized as a single JSON
//     blob, written atomically, for users without an account.
//
// State sits above a Backend and applies the optimistic mutation policy:
// every operation updates memory first and best-effort forwards to the
// backend. A backend failure is logged and absorbed whenever a local
// equivalent of the operation exists; it is surfaced only where none does
// (the initial session list load, lazy message loads).
package store
