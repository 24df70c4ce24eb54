package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/dispatch"
)

type fakeAsker struct {
	reply   assistant.Reply
	err     error
	asked   []string
	forgot  int64
	forgetE error
}

func (f *fakeAsker) Ask(_ context.Context, q string) (assistant.Reply, error) {
	f.asked = append(f.asked, q)
	r := f.reply
	r.Query = q
	return r, f.err
}

func (f *fakeAsker) ForgetAll(context.Context) (int64, error) {
	return f.forgot, f.forgetE
}

type fakeRegistry struct {
	cleared int
}

func (f *fakeRegistry) Handlers() []dispatch.HandlerInfo {
	return []dispatch.HandlerInfo{{Name: "Math", Specialization: "Mathematics"}, {Name: "System", Specialization: "System Information"}}
}

func (f *fakeRegistry) Summary() dispatch.Summary {
	return dispatch.Summary{TotalRequests: 4, Usage: map[string]int64{"Math": 3}, NoMatch: 1}
}

func (f *fakeRegistry) ClearCaches() int {
	f.cleared++
	return 3
}

func newTestModel(a *fakeAsker) Model {
	m := NewModel(a, &fakeRegistry{}, Options{Plain: true})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func typeAndSend(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func lastMessage(m Model) ChatMessage {
	return m.messages[len(m.messages)-1]
}

func TestSend_AsksAndShowsReply(t *testing.T) {
	a := &fakeAsker{reply: assistant.Reply{
		Text: "5 × 3 = 15", Handler: "Math", Source: assistant.SourceDispatch, Confidence: 0.9, LatencyMs: 1.5,
	}}
	m := newTestModel(a)

	m, cmd := typeAndSend(t, m, "5*3")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Equal(t, RoleUser, lastMessage(m).Role)
	assert.Contains(t, m.View(), "thinking")

	msg := m.ask("5*3")()
	assert.Equal(t, []string{"5*3"}, a.asked)

	next, cmd := m.Update(msg)
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.False(t, m.busy)

	last := lastMessage(m)
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "5 × 3 = 15", last.Content)
	assert.Equal(t, "Math · 90% confident · 1.5ms", last.Meta)
	assert.Contains(t, m.View(), "5 × 3 = 15")
}

func TestSend_IgnoresBlankAndBusy(t *testing.T) {
	m := newTestModel(&fakeAsker{})
	before := len(m.messages)

	m, cmd := typeAndSend(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Len(t, m.messages, before)

	m.busy = true
	m, cmd = typeAndSend(t, m, "hello")
	assert.Nil(t, cmd)
	assert.Len(t, m.messages, before)
}

func TestReply_FarewellQuits(t *testing.T) {
	m := newTestModel(&fakeAsker{})
	next, cmd := m.Update(replyMsg{reply: assistant.Reply{Text: "Goodbye!", Farewell: true, Source: assistant.SourceSmallTalk}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "Goodbye!", lastMessage(next.(Model)).Content)
}

func TestReply_Errors(t *testing.T) {
	m := newTestModel(&fakeAsker{})

	next, _ := m.Update(replyMsg{err: errors.New("boom")})
	m = next.(Model)
	assert.Equal(t, RoleError, lastMessage(m).Role)

	next, _ = m.Update(replyMsg{reply: assistant.Reply{Text: "Error processing request: x", Error: "x", Handler: "Math", Source: assistant.SourceDispatch}})
	assert.Equal(t, RoleError, lastMessage(next.(Model)).Role)
}

func TestReplyMeta(t *testing.T) {
	tests := []struct {
		reply assistant.Reply
		want  string
	}{
		{assistant.Reply{Handler: "SmallTalk", Source: assistant.SourceSmallTalk}, "SmallTalk"},
		{assistant.Reply{Handler: "Math", Source: assistant.SourcePersisted, Cached: true}, "Math · remembered"},
		{assistant.Reply{Handler: "Math", Source: assistant.SourceDispatch, Cached: true, Confidence: 1, LatencyMs: 0.04}, "Math · cached · 100% confident · 0.0ms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, replyMeta(tt.reply))
	}
}

func TestCommands(t *testing.T) {
	reg := &fakeRegistry{}
	a := &fakeAsker{forgot: 2}
	m := NewModel(a, reg, Options{Plain: true})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m, _ = typeAndSend(t, m, "/handlers")
	assert.Contains(t, lastMessage(m).Content, "1. Math (Mathematics)")
	assert.Contains(t, lastMessage(m).Content, "2. System (System Information)")

	m, _ = typeAndSend(t, m, "/status")
	assert.Contains(t, lastMessage(m).Content, dispatch.Summary{TotalRequests: 4, Usage: map[string]int64{"Math": 3}, NoMatch: 1}.String())

	m, _ = typeAndSend(t, m, "/clear")
	assert.Equal(t, "Cleared 3 cached responses.", lastMessage(m).Content)
	assert.Equal(t, 1, reg.cleared)

	m, cmd := typeAndSend(t, m, "/forget")
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Forgot 2 remembered answers.", lastMessage(m).Content)

	m, _ = typeAndSend(t, m, "/nope")
	assert.Equal(t, RoleError, lastMessage(m).Role)

	m, _ = typeAndSend(t, m, "/help")
	assert.Contains(t, lastMessage(m).Content, "/forget")

	_, cmd = typeAndSend(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	assert.Empty(t, a.asked, "commands never reach the assistant")
}

func TestForgetError(t *testing.T) {
	m := newTestModel(&fakeAsker{forgetE: errors.New("db locked")})
	m, cmd := typeAndSend(t, m, "/forget")
	next, _ := m.Update(cmd())
	last := lastMessage(next.(Model))
	assert.Equal(t, RoleError, last.Role)
	assert.Equal(t, "db locked", last.Content)
}

func TestClearViewKey(t *testing.T) {
	m := newTestModel(&fakeAsker{})
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, next.(Model).messages)
}
