// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package send

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/chatdeck/internal/chatapi"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/store"
)

// =============================================================================
// FAKE STREAMER
// =============================================================================

// fakeStreamer replays a scripted event sequence.
type fakeStreamer struct {
	rejectWith error
	script     []chatapi.StreamEvent
	// block, when non-nil, keeps the stream open after the script until
	// closed or the context is canceled. tail plays after block releases.
	block chan struct{}
	tail  []chatapi.StreamEvent
}

func (f *fakeStreamer) Stream(ctx context.Context, req chatapi.ChatRequest) (<-chan chatapi.StreamEvent, error) {
	if f.rejectWith != nil {
		return nil, f.rejectWith
	}
	out := make(chan chatapi.StreamEvent)
	go func() {
		defer close(out)
		for _, ev := range f.script {
			select {
			case out <- ev:
			case <-ctx.Done():
				out <- chatapi.StreamEvent{Kind: chatapi.EventError, Err: ctx.Err()}
				return
			}
		}
		if f.block != nil {
			select {
			case <-f.block:
				for _, ev := range f.tail {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				out <- chatapi.StreamEvent{Kind: chatapi.EventError, Err: ctx.Err()}
			}
		}
	}()
	return out, nil
}

func (f *fakeStreamer) Model() string { return "fake-model" }

func tokenEvent(s string) chatapi.StreamEvent {
	return chatapi.StreamEvent{Kind: chatapi.EventToken, Content: s}
}

func doneEvent() chatapi.StreamEvent {
	return chatapi.StreamEvent{Kind: chatapi.EventDone}
}

func newTestState(t *testing.T) *store.State {
	t.Helper()
	backend, err := store.OpenGuest(filepath.Join(t.TempDir(), "guest.json"), nil)
	if err != nil {
		t.Fatalf("OpenGuest failed: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return store.NewState(backend, nil)
}

// =============================================================================
// ORCHESTRATOR TESTS
// =============================================================================

func TestSend_HappyPath(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("Hi"), tokenEvent(" there"), doneEvent(),
	}}
	orch := New(st, streamer, nil)
	t.Cleanup(orch.Drain)

	result, err := orch.Send(context.Background(), Request{Text: "Hello"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !result.Completed || result.Err != nil {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.Content != "Hi there" {
		t.Errorf("Content = %q, want %q", result.Content, "Hi there")
	}

	session := st.Session(result.SessionID)
	if session == nil {
		t.Fatal("session should have been created on demand")
	}
	if session.Title != "Hello" {
		t.Errorf("Title = %q, want %q", session.Title, "Hello")
	}
	if session.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want 2", session.MessageCount())
	}

	user := session.Messages[0]
	reply := session.Messages[1]
	if user.Role != model.RoleUser || user.Content != "Hello" {
		t.Errorf("user message = %+v", user)
	}
	if reply.Role != model.RoleAssistant || reply.Content != "Hi there" {
		t.Errorf("assistant message = %+v", reply)
	}
	if reply.IsStreaming {
		t.Error("placeholder should be finalized")
	}
	if reply.RespondingTo != user.ID {
		t.Errorf("RespondingTo = %q, want %q", reply.RespondingTo, user.ID)
	}
}

func TestSend_TokenCallbackObservesFragments(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("a"), tokenEvent("b"), doneEvent(),
	}}
	orch := New(st, streamer, nil)
	t.Cleanup(orch.Drain)

	var got string
	_, err := orch.Send(context.Background(), Request{
		Text:    "x",
		OnToken: func(fragment string) { got += fragment },
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got != "ab" {
		t.Errorf("observed fragments = %q, want %q", got, "ab")
	}
}

func TestSend_MidStreamDropPreservesPartial(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("Par"), tokenEvent("tial"),
		{Kind: chatapi.EventError, Err: errors.New("connection reset")},
	}}
	orch := New(st, streamer, nil)

	result, err := orch.Send(context.Background(), Request{Text: "q"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Completed {
		t.Error("drop must not count as completion")
	}
	if result.Err == nil {
		t.Error("result should carry the stream error")
	}

	reply := st.Session(result.SessionID).GetMessage(result.AssistantMessageID)
	want := "Partial" + StreamBrokenMarker
	if reply.Content != want {
		t.Errorf("Content = %q, want %q", reply.Content, want)
	}
	if reply.IsStreaming {
		t.Error("placeholder should be finalized after failure")
	}
}

func TestSend_RejectedRequestWritesMarker(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{rejectWith: errors.New("503 from upstream")}
	orch := New(st, streamer, nil)

	result, err := orch.Send(context.Background(), Request{Text: "q"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Err == nil {
		t.Error("result should carry the rejection")
	}

	reply := st.Session(result.SessionID).GetMessage(result.AssistantMessageID)
	if reply.Content != FailedRequestMarker {
		t.Errorf("Content = %q, want failure marker", reply.Content)
	}
	if reply.IsStreaming {
		t.Error("placeholder should be finalized")
	}
}

func TestSend_EmptyTextRejected(t *testing.T) {
	orch := New(newTestState(t), &fakeStreamer{}, nil)
	if _, err := orch.Send(context.Background(), Request{Text: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSend_RateLimited(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{doneEvent()}}
	orch := New(st, streamer, nil, WithRateLimit(time.Hour, 1))
	t.Cleanup(orch.Drain)

	if _, err := orch.Send(context.Background(), Request{Text: "one"}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if _, err := orch.Send(context.Background(), Request{Text: "two"}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestSend_SecondSendSameSessionRejected(t *testing.T) {
	st := newTestState(t)
	session := st.CreateSession(context.Background(), "t", "m")

	block := make(chan struct{})
	streamer := &fakeStreamer{
		script: []chatapi.StreamEvent{tokenEvent("...")},
		block:  block,
	}
	orch := New(st, streamer, nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		orch.Send(context.Background(), Request{SessionID: session.ID, Text: "first"})
	}()

	// Wait for the first send to register.
	deadline := time.After(2 * time.Second)
	for !orch.InFlight(session.ID) {
		select {
		case <-deadline:
			t.Fatal("first send never became in-flight")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := orch.Send(context.Background(), Request{SessionID: session.ID, Text: "second"})
	if !errors.Is(err, ErrSendInFlight) {
		t.Errorf("err = %v, want ErrSendInFlight", err)
	}

	close(block)
	<-firstDone

	// Exactly one placeholder, never two streaming messages.
	streaming := 0
	for _, msg := range st.Session(session.ID).Messages {
		if msg.IsStreaming {
			streaming++
		}
	}
	if streaming > 1 {
		t.Errorf("%d streaming messages, want at most 1", streaming)
	}
}

func TestSend_CancelFreezesPartial(t *testing.T) {
	st := newTestState(t)
	session := st.CreateSession(context.Background(), "t", "m")

	streamer := &fakeStreamer{
		script: []chatapi.StreamEvent{tokenEvent("Par")},
		block:  make(chan struct{}),
	}
	orch := New(st, streamer, nil)

	resultCh := make(chan *Result, 1)
	go func() {
		result, _ := orch.Send(context.Background(), Request{SessionID: session.ID, Text: "q"})
		resultCh <- result
	}()

	deadline := time.After(2 * time.Second)
	for !orch.InFlight(session.ID) {
		select {
		case <-deadline:
			t.Fatal("send never became in-flight")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Let the scripted token land before aborting.
	time.Sleep(50 * time.Millisecond)

	if !orch.Cancel(session.ID) {
		t.Fatal("Cancel should find the in-flight send")
	}
	result := <-resultCh

	reply := st.Session(session.ID).GetMessage(result.AssistantMessageID)
	if reply.Content != "Par" {
		t.Errorf("Content = %q, want frozen partial %q", reply.Content, "Par")
	}
	if reply.IsStreaming {
		t.Error("canceled placeholder should be finalized")
	}
	if result.Completed {
		t.Error("cancellation is not completion")
	}
}

func TestSend_SessionDeletedMidStream(t *testing.T) {
	st := newTestState(t)
	session := st.CreateSession(context.Background(), "t", "m")

	block := make(chan struct{})
	streamer := &fakeStreamer{
		script: []chatapi.StreamEvent{tokenEvent("42")},
		block:  block,
		tail:   []chatapi.StreamEvent{doneEvent()},
	}
	orch := New(st, streamer, nil)

	resultCh := make(chan *Result, 1)
	go func() {
		result, _ := orch.Send(context.Background(), Request{SessionID: session.ID, Text: "q"})
		resultCh <- result
	}()

	deadline := time.After(2 * time.Second)
	for !orch.InFlight(session.ID) {
		select {
		case <-deadline:
			t.Fatal("send never became in-flight")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Let the scripted token land first.
	time.Sleep(50 * time.Millisecond)

	// Pull the session out from under the running stream, then let the
	// stream finish.
	if err := st.DeleteSession(context.Background(), session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	close(block)

	result := <-resultCh
	if result == nil {
		t.Fatal("send must still produce a result")
	}
	if !result.Completed {
		t.Error("the stream ran to completion, result should say so")
	}
	if result.Content != "42" {
		t.Errorf("Content = %q, want %q", result.Content, "42")
	}

	orch.Drain()
	if st.Session(session.ID) != nil {
		t.Error("deleted session must not come back")
	}
}

func TestSend_ExistingSessionTitlePreserved(t *testing.T) {
	backend, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	id, err := backend.CreateSession(ctx, model.NewSession("How do goroutines work?", "m"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := backend.SaveMessage(ctx, id, model.NewUserMessage("first question")); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	// Reopen through State without loading history: the session has zero
	// resident messages but already carries a stored title.
	st := store.NewState(backend, nil)
	if err := st.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	streamer := &fakeStreamer{script: []chatapi.StreamEvent{tokenEvent("sure"), doneEvent()}}
	orch := New(st, streamer, nil)
	if _, err := orch.Send(ctx, Request{SessionID: id, Text: "a completely different follow-up"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	orch.Drain()

	if got := st.Session(id).Title; got != "How do goroutines work?" {
		t.Errorf("Title = %q, stored title must survive a follow-up send", got)
	}
}

func TestSend_DrainFlushesFinalContent(t *testing.T) {
	backend, err := store.OpenGuest(filepath.Join(t.TempDir(), "guest.json"), nil)
	if err != nil {
		t.Fatalf("OpenGuest failed: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	st := store.NewState(backend, nil)

	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("Hi"), tokenEvent(" there"), doneEvent(),
	}}
	orch := New(st, streamer, nil)

	result, err := orch.Send(context.Background(), Request{Text: "Hello"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	orch.Drain()

	// After Drain the reply must be durable, not just resident.
	messages, err := backend.LoadMessages(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("LoadMessages failed: %v", err)
	}
	var assistant *model.Message
	for _, m := range messages {
		if m.Role == model.RoleAssistant {
			assistant = m
		}
	}
	if assistant == nil {
		t.Fatal("assistant reply was never persisted")
	}
	if assistant.Content != "Hi there" {
		t.Errorf("persisted Content = %q, want %q", assistant.Content, "Hi there")
	}
}

// =============================================================================
// EDIT AND RESEND TESTS
// =============================================================================

func TestEditAndResend(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("answer one"), doneEvent(),
	}}
	orch := New(st, streamer, nil)
	t.Cleanup(orch.Drain)

	first, err := orch.Send(context.Background(), Request{Text: "qestion with typo"})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	streamer.script = []chatapi.StreamEvent{tokenEvent("answer two"), doneEvent()}
	second, err := orch.EditAndResend(context.Background(), first.UserMessageID,
		Request{SessionID: first.SessionID, Text: "question fixed"})
	if err != nil {
		t.Fatalf("EditAndResend failed: %v", err)
	}

	session := st.Session(first.SessionID)
	if session.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want 2 (old pair replaced)", session.MessageCount())
	}
	if session.GetMessage(first.UserMessageID) != nil {
		t.Error("edited message should be gone")
	}
	if got := session.Messages[0].Content; got != "question fixed" {
		t.Errorf("user content = %q", got)
	}
	if got := session.Messages[1].Content; got != "answer two" {
		t.Errorf("assistant content = %q", got)
	}
	if second.SessionID != first.SessionID {
		t.Error("resend must stay in the same session")
	}
}

func TestEditAndResend_ProceedsPastDeleteFailure(t *testing.T) {
	st := newTestState(t)
	streamer := &fakeStreamer{script: []chatapi.StreamEvent{
		tokenEvent("ok"), doneEvent(),
	}}
	orch := New(st, streamer, nil)
	t.Cleanup(orch.Drain)

	first, err := orch.Send(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// Remove the pair under the orchestrator's feet; the deletes inside
	// EditAndResend will fail, and the resend must go through anyway.
	st.DeleteMessage(context.Background(), first.SessionID, first.AssistantMessageID)
	st.DeleteMessage(context.Background(), first.SessionID, first.UserMessageID)

	result, err := orch.EditAndResend(context.Background(), first.UserMessageID,
		Request{SessionID: first.SessionID, Text: "hello again"})
	if err != nil {
		t.Fatalf("EditAndResend should proceed, got %v", err)
	}
	if result.Content != "ok" {
		t.Errorf("Content = %q", result.Content)
	}
	if got := st.Session(first.SessionID).MessageCount(); got != 2 {
		t.Errorf("MessageCount = %d, want 2", got)
	}
}
