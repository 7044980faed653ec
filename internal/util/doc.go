// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the small shared helpers the rest of chatdeck
// leans on: UTF-8 safe truncation and padding for table and sidebar
// layout (TruncateRunes, TruncateWidth, PadRight), and crash-safe
// file writing (AtomicWriteFile) used by the guest store and the
// config writer.
package util
