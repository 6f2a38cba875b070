package chatui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"sdqueue/internal/chat"
	"sdqueue/internal/models"
)

type stubSender struct {
	reply chat.Reply
	err   error
	got   []string
}

func (s *stubSender) Send(_ context.Context, text string) (chat.Reply, error) {
	s.got = append(s.got, text)
	return s.reply, s.err
}

type stubQueue struct {
	prompt    string
	modelType models.ModelType
	err       error
}

func (q *stubQueue) Enqueue(_ context.Context, prompt string, mt models.ModelType) (string, error) {
	q.prompt = prompt
	q.modelType = mt
	return "sd_prompt_test.txt", q.err
}

func newTestModel(s Sender, q Enqueuer) Model {
	m := New(context.Background(), s, q, time.Second, zerolog.Nop())
	m.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }
	return m
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestExitQuits(t *testing.T) {
	m := newTestModel(&stubSender{}, &stubQueue{})
	m, cmd := typeAndEnter(t, m, " EXIT ")
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "Goodbye!") {
		t.Fatalf("expected goodbye line in view")
	}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	m := newTestModel(&stubSender{}, &stubQueue{})
	m, cmd := typeAndEnter(t, m, "   ")
	if cmd != nil || m.waiting {
		t.Fatalf("blank input should not start a request")
	}
}

func TestFinalizedReplyIsEnqueued(t *testing.T) {
	sender := &stubSender{reply: chat.ParseReply("SDPROMPT: red fox, snow\nFinal: Yes\nModelType: Realism")}
	q := &stubQueue{}
	m := newTestModel(sender, q)

	m, cmd := typeAndEnter(t, m, "looks great")
	if cmd == nil || !m.waiting {
		t.Fatalf("expected pending chat request")
	}
	if m.input.Value() != "" {
		t.Fatalf("input should be cleared after sending")
	}

	msg := m.sendCmd("looks great")()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if m.waiting {
		t.Fatalf("waiting should clear once the reply arrives")
	}
	if cmd == nil {
		t.Fatalf("finalized reply should trigger an enqueue")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)

	if q.prompt != "red fox, snow" || q.modelType != models.ModelRealism {
		t.Fatalf("unexpected enqueue prompt=%q model=%q", q.prompt, q.modelType)
	}
	if !strings.Contains(m.View(), "saved to queue folder") {
		t.Fatalf("expected confirmation in view:\n%s", m.View())
	}
}

func TestDraftReplyIsNotEnqueued(t *testing.T) {
	sender := &stubSender{reply: chat.ParseReply("SDPROMPT: owl\nFinal: No\nModelType: Standard")}
	q := &stubQueue{}
	m := newTestModel(sender, q)

	next, cmd := m.Update(replyMsg{reply: sender.reply})
	if cmd != nil {
		t.Fatalf("draft reply must not enqueue")
	}
	if !strings.Contains(next.(Model).View(), "Assistant: SDPROMPT: owl") {
		t.Fatalf("assistant reply missing from view")
	}
	if q.prompt != "" {
		t.Fatalf("queue should be untouched")
	}
}

func TestChatErrorIsShown(t *testing.T) {
	m := newTestModel(&stubSender{}, &stubQueue{})
	m.waiting = true
	next, _ := m.Update(replyMsg{err: errors.New("connection refused")})
	m = next.(Model)
	if m.waiting {
		t.Fatalf("waiting should clear on error")
	}
	if !strings.Contains(m.View(), "Error calling model: connection refused") {
		t.Fatalf("error missing from view")
	}
}

func TestInputIgnoredWhileWaiting(t *testing.T) {
	sender := &stubSender{}
	m := newTestModel(sender, &stubQueue{})
	m.waiting = true
	_, cmd := typeAndEnter(t, m, "another")
	if cmd != nil {
		t.Fatalf("no new request while one is in flight")
	}
}
