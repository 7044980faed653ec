// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatapi implements the HTTP client for the chat backend.
//
// It covers three concerns:
//   - the streaming chat call (POST /chat/stream) whose response body is
//     a server-sent-event style token stream,
//   - the transport decoder (EventReader) that turns the byte stream into
//     discrete events regardless of how the transport chunks it,
//   - the token accumulator that folds events into final message content
//     while enforcing at-most-once completion/error semantics.
//
// Streaming is exposed as a channel of tagged StreamEvent values rather
// than bare callbacks, so callers can compose it with context
// cancellation and timeouts. A thin callback adapter (Consume) is
// provided for callers that want the onToken/onComplete/onError shape.
package chatapi
