// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package send

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatdeck/internal/chatapi"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/store"
)

// Failure markers written into the assistant placeholder. The first
// replaces the content when the request never produced a stream; the
// second is appended after partial content when the stream broke midway.
const (
	FailedRequestMarker = "Failed to get response from server"
	StreamBrokenMarker  = "\n\nError receiving response"
)

// persistTimeout bounds the out-of-band write of final assistant content.
const persistTimeout = 30 * time.Second

var (
	// ErrSendInFlight rejects a second send on a session that is still
	// streaming.
	ErrSendInFlight = errors.New("a send is already in flight for this session")
	// ErrEmptyMessage rejects a send with no text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrRateLimited rejects a send that exceeds the configured rate.
	ErrRateLimited = errors.New("too many sends, slow down")
)

// =============================================================================
// STREAMER INTERFACE
// =============================================================================

// Streamer is the chat backend surface the orchestrator needs.
// *chatapi.Client satisfies it.
type Streamer interface {
	Stream(ctx context.Context, req chatapi.ChatRequest) (<-chan chatapi.StreamEvent, error)
	Model() string
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the send state machine over a State and a Streamer.
type Orchestrator struct {
	state   *store.State
	client  Streamer
	logger  *slog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc // session id -> abort

	// persistWG tracks out-of-band final-content writes so shutdown can
	// wait for them instead of racing the backend close.
	persistWG sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRateLimit caps send frequency. burst sends may go through
// immediately, then one send per interval.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(o *Orchestrator) {
		o.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// New creates an Orchestrator.
func New(state *store.State, client Streamer, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		state:    state,
		client:   client,
		logger:   logger,
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request describes one send.
type Request struct {
	// SessionID targets an existing session. Empty means use the active
	// session, or create one if none exists.
	SessionID string

	// Text is the user's message.
	Text string

	// Model overrides the session's selected model for this send.
	Model string

	// DocumentName and DocumentContext attach an uploaded document: the
	// name is recorded as message metadata, the context travels with the
	// chat request.
	DocumentName    string
	DocumentContext string

	// OnToken, if set, observes each content fragment as it is applied.
	OnToken func(fragment string)
}

// Result reports the outcome of a send. Err is set when the machine ended
// in the Failed state; the placeholder already carries the failure marker.
type Result struct {
	SessionID          string
	UserMessageID      string
	AssistantMessageID string
	Content            string
	Completed          bool
	Err                error
}

// =============================================================================
// SEND
// =============================================================================

// Send runs the full state machine for one message. It blocks until the
// stream ends, so callers run it from a goroutine or command. The returned
// error covers rejections before any state was touched (empty text, rate
// limit, send already in flight); stream failures land in Result.Err.
func (o *Orchestrator) Send(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyMessage
	}
	if o.limiter != nil && !o.limiter.Allow() {
		return nil, ErrRateLimited
	}

	// Resolve the target session, creating one on demand.
	session := o.resolveSession(ctx, req)
	sessionID := session.ID

	streamCtx, err := o.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer o.release(sessionID)

	modelID := req.Model
	if modelID == "" {
		modelID = session.SelectedModel
	}
	if modelID == "" {
		modelID = o.client.Model()
	}

	// Record the user message optimistically; on persistence success it
	// adopts the authoritative id. A title is derived only while the
	// session is still untitled: resident message count is no signal,
	// since a restored session with unloaded history has zero resident
	// messages but a stored title that must survive.
	untitled := session.Title == ""
	user := model.NewUserMessage(req.Text)
	if req.DocumentName != "" {
		user.SetMeta("document_name", req.DocumentName)
	}
	if err := o.state.AppendMessage(ctx, sessionID, user); err != nil {
		return nil, err
	}
	if untitled {
		title := model.TitleFromContent(req.Text)
		o.state.UpdateSessionFields(ctx, sessionID, store.SessionPatch{Title: &title})
	}

	// Streaming placeholder, memory-only until its content is final.
	placeholder := model.NewAssistantPlaceholder(user.ID)
	if err := o.state.AppendLocal(sessionID, placeholder); err != nil {
		return nil, err
	}

	result := &Result{
		SessionID:          sessionID,
		UserMessageID:      user.ID,
		AssistantMessageID: placeholder.ID,
	}

	events, err := o.client.Stream(streamCtx, chatapi.ChatRequest{
		Message:         req.Text,
		Model:           modelID,
		DocumentContext: req.DocumentContext,
	})
	if err != nil {
		// Rejected before any stream: overwrite with the failure marker.
		o.failPlaceholder(sessionID, placeholder.ID, FailedRequestMarker)
		o.logger.Warn("chat request rejected", "session", sessionID, "error", err)
		result.Err = err
		result.Content = FailedRequestMarker
		return result, nil
	}

	acc := chatapi.NewAccumulator()
	streamErr := acc.Consume(events, chatapi.Handlers{
		OnToken: func(fragment string) {
			o.state.AppendToken(sessionID, placeholder.ID, fragment)
			if req.OnToken != nil {
				req.OnToken(fragment)
			}
		},
		OnComplete: func() {
			o.finalize(sessionID, placeholder.ID)
		},
		OnError: func(err error) {
			if errors.Is(err, context.Canceled) {
				// Aborted on purpose: freeze the partial content with no
				// failure marker.
				o.finalize(sessionID, placeholder.ID)
				return
			}
			o.state.PatchLocal(sessionID, placeholder.ID, appendMarkerPatch(acc.Content()))
			o.logger.Warn("stream broke mid-response",
				"session", sessionID, "partial_chars", len(acc.Content()), "error", err)
		},
	})

	// The session may have been deleted while the stream ran; the state
	// mutations above already absorbed that. The content still reaches
	// the caller, there is just nowhere left to persist it.
	sessionGone := false
	if final := o.state.Session(sessionID); final != nil {
		if msg := final.GetMessage(placeholder.ID); msg != nil {
			result.Content = msg.Content
		}
	} else {
		sessionGone = true
		result.Content = acc.Content()
	}
	result.Completed = acc.Completed()
	result.Err = streamErr

	if acc.Completed() && !sessionGone {
		// Out-of-band durable persist; failure is logged inside and the
		// send result is unaffected.
		o.persistWG.Add(1)
		go func() {
			defer o.persistWG.Done()
			pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			o.state.PersistMessage(pctx, sessionID, placeholder.ID)
		}()
	}
	return result, nil
}

// Drain blocks until outstanding out-of-band persistence writes have
// finished. Callers shutting down the backend call this first so a just
// completed reply is not lost to a closed store.
func (o *Orchestrator) Drain() {
	o.persistWG.Wait()
}

// =============================================================================
// EDIT AND RESEND
// =============================================================================

// EditAndResend deletes a previously sent user message and its assistant
// reply, then re-enters the send machine with the edited request. Deletion
// failures are logged, not fatal: forward progress wins over strict
// consistency. req.SessionID must name the session holding messageID.
func (o *Orchestrator) EditAndResend(ctx context.Context, messageID string, req Request) (*Result, error) {
	session := o.state.Session(req.SessionID)
	if session == nil {
		return nil, store.ErrSessionNotFound
	}

	if reply := session.ReplyTo(messageID); reply != nil {
		if err := o.state.DeleteMessage(ctx, req.SessionID, reply.ID); err != nil {
			o.logger.Warn("stale reply not deleted, resending anyway",
				"session", req.SessionID, "message", reply.ID, "error", err)
		}
	}
	if err := o.state.DeleteMessage(ctx, req.SessionID, messageID); err != nil {
		o.logger.Warn("edited message not deleted, resending anyway",
			"session", req.SessionID, "message", messageID, "error", err)
	}

	return o.Send(ctx, req)
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel aborts the in-flight send on a session, if any. The network
// stream stops and the placeholder is frozen with the partial content.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.inFlight[sessionID]
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether a send is running on the session.
func (o *Orchestrator) InFlight(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[sessionID]
	return ok
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// resolveSession picks the target session for a request.
func (o *Orchestrator) resolveSession(ctx context.Context, req Request) *model.Session {
	if req.SessionID != "" {
		if s := o.state.Session(req.SessionID); s != nil {
			return s
		}
	}
	if s := o.state.ActiveSession(); s != nil && req.SessionID == "" {
		return s
	}
	return o.state.CreateSession(ctx, "", req.Model)
}

// acquire registers an in-flight send and returns its cancelable context.
func (o *Orchestrator) acquire(ctx context.Context, sessionID string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[sessionID]; busy {
		return nil, ErrSendInFlight
	}
	streamCtx, cancel := context.WithCancel(ctx)
	o.inFlight[sessionID] = cancel
	return streamCtx, nil
}

// release clears the in-flight slot.
func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	if cancel, ok := o.inFlight[sessionID]; ok {
		cancel()
		delete(o.inFlight, sessionID)
	}
	o.mu.Unlock()
}

// finalize clears the streaming flag, freezing whatever content arrived.
func (o *Orchestrator) finalize(sessionID, messageID string) {
	done := false
	o.state.PatchLocal(sessionID, messageID, store.MessagePatch{IsStreaming: &done})
}

// failPlaceholder overwrites the placeholder with a failure marker.
func (o *Orchestrator) failPlaceholder(sessionID, messageID, marker string) {
	done := false
	o.state.PatchLocal(sessionID, messageID, store.MessagePatch{
		Content:     &marker,
		IsStreaming: &done,
	})
}

// appendMarkerPatch preserves partial content and appends the mid-stream
// failure marker.
func appendMarkerPatch(partial string) store.MessagePatch {
	content := partial + StreamBrokenMarker
	done := false
	return store.MessagePatch{Content: &content, IsStreaming: &done}
}
