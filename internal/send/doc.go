// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package send orchestrates one chat send from user input to a finalized
// assistant message.
//
// A send walks a fixed sequence: resolve the target session (creating one
// on demand), record the user message optimistically, append a streaming
// assistant placeholder, stream tokens into it, and finalize it as
// completed or failed. The final assistant content is persisted out of
// band so the stream never blocks on storage.
//
// Only one send may be in flight per session; a second send on the same
// session is rejected with ErrSendInFlight. An in-flight send can be
// aborted through Cancel, which stops the network stream and freezes the
// placeholder with whatever content arrived.
package send
