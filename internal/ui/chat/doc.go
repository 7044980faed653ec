// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat implements the Bubble Tea chat interface for chatdeck.

The interface has three panes: a session sidebar grouped by recency
(Favorites / Today / Yesterday / Earlier), a message viewport, and an input
area. A status bar shows the selected model, guest-mode indicator, transient
errors, and key hints.

# Architecture

The Model owns no chat data. All session and message state lives in the
store.State; sends go through the send.Orchestrator. The UI is a projection:
commands kick off loads and sends, messages report back, and the View renders
whatever the store currently holds.

# Streaming

Tokens arrive on the orchestrator's OnToken callback, which runs on the
streaming goroutine. They are written into a StreamingBuffer and drained by
StreamTickMsg at a capped 30fps, so the terminal repaints smoothly no matter
how fast the backend streams. Completed assistant replies are rendered as
markdown through glamour; in-flight replies are shown as plain text with a
spinner.

# Keyboard

Enter sends, Tab moves focus between input and sidebar, C-n starts a new
chat, C-p cycles the model, C-f toggles favorite, C-r edits the last user
message for resend, and Esc cancels an in-flight reply while keeping the
partial content.
*/
package chat
