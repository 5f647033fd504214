package router

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flowchat/config"
	"flowchat/internal/conversation"
)

// fakeScheduler records scheduled callbacks and fires them on demand.
type fakeScheduler struct {
	tasks []*fakeTask
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *fakeScheduler) After(d time.Duration, fn func()) func() {
	task := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() { task.cancelled = true }
}

// fire runs every pending callback in scheduling order.
func (s *fakeScheduler) fire() {
	for {
		var next *fakeTask
		for _, task := range s.tasks {
			if !task.fired && !task.cancelled {
				next = task
				break
			}
		}
		if next == nil {
			return
		}
		next.fired = true
		next.fn()
	}
}

func (s *fakeScheduler) pending() int {
	n := 0
	for _, task := range s.tasks {
		if !task.fired && !task.cancelled {
			n++
		}
	}
	return n
}

// fakeSurface records every capability call.
type fakeSurface struct {
	appended     []conversation.Message
	busyHistory  []bool
	notices      []ToolNotice
	actions      [][]string
	navigations  []string
	removedTasks []string
	reloads      int
	prunes       int
}

func (s *fakeSurface) AppendMessage(msg conversation.Message)  { s.appended = append(s.appended, msg) }
func (s *fakeSurface) PruneMessages()                          { s.prunes++ }
func (s *fakeSurface) SetBusy(busy bool)                       { s.busyHistory = append(s.busyHistory, busy) }
func (s *fakeSurface) SetToolNotices(notices []ToolNotice)     { s.notices = notices }
func (s *fakeSurface) SetSuggestedActions(labels []string)     { s.actions = append(s.actions, labels) }
func (s *fakeSurface) NavigateHome(target string)              { s.navigations = append(s.navigations, target) }
func (s *fakeSurface) RemoveTask(taskID string)                { s.removedTasks = append(s.removedTasks, taskID) }
func (s *fakeSurface) ReloadView()                             { s.reloads++ }

type harness struct {
	router  *Router
	surface *fakeSurface
	sched   *fakeScheduler
	sent    [][]byte
	sentErr error
	tokens  []string
}

func newHarness(t *testing.T, features config.Features, ack config.CompletionAck) *harness {
	t.Helper()

	h := &harness{surface: &fakeSurface{}, sched: &fakeScheduler{}}
	h.router = New(Options{
		Surface:   h.surface,
		Scheduler: h.sched,
		Send: func(payload []byte) error {
			if h.sentErr != nil {
				return h.sentErr
			}
			h.sent = append(h.sent, payload)
			return nil
		},
		Features:  features,
		Ack:       ack,
		SaveToken: func(token string) error { h.tokens = append(h.tokens, token); return nil },
		Logger:    zerolog.Nop(),
	})
	return h
}

func allFeatures() config.Features {
	return config.Features{ToolNotices: true, SuggestedActions: true, SingleTurn: true}
}

func TestTypingThenReply(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"typing"}`))
	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"Done."}`))

	wantBusy := []bool{true, false}
	if len(h.surface.busyHistory) != 2 || h.surface.busyHistory[0] != wantBusy[0] || h.surface.busyHistory[1] != wantBusy[1] {
		t.Errorf("busy history = %v, want %v", h.surface.busyHistory, wantBusy)
	}

	if len(h.surface.appended) != 1 {
		t.Fatalf("appended %d messages, want 1", len(h.surface.appended))
	}
	msg := h.surface.appended[0]
	if msg.Text != "Done." || msg.Origin != conversation.OriginSystem {
		t.Errorf("message = %+v", msg)
	}
}

func TestLegacyTypingThenReply(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte("!!COMMAND: typing!!"))
	if !h.router.Busy() {
		t.Error("sentinel did not set busy")
	}
	if len(h.surface.appended) != 0 {
		t.Errorf("sentinel appended %d messages", len(h.surface.appended))
	}

	h.router.HandleRaw([]byte("Task created."))
	if h.router.Busy() {
		t.Error("legacy reply did not clear busy")
	}
	if len(h.surface.appended) != 1 || h.surface.appended[0].Text != "Task created." {
		t.Errorf("appended = %v", h.surface.appended)
	}
}

func TestOnlyRepliesAppendMessages(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"typing"}`))
	h.router.HandleRaw([]byte(`{"kind":"action","actions":["a","b"]}`))
	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"searching"}`))
	h.router.HandleRaw([]byte(`{"kind":"confetti"}`))
	h.router.HandleRaw([]byte(`{"no_kind":true}`))
	h.router.HandleRaw([]byte(`{"kind":"error","error":"unknown message type"}`))
	h.router.HandleRaw([]byte(`{"type":"error","error":"unknown message type"}`))

	if len(h.surface.appended) != 0 {
		t.Errorf("non-reply frames appended %d messages", len(h.surface.appended))
	}
	if h.router.Log().Len() != 0 {
		t.Errorf("log has %d entries", h.router.Log().Len())
	}
}

func TestSubmitPrompt(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	if err := h.router.SubmitPrompt("Email Bob about potluck Sunday."); err != nil {
		t.Fatalf("SubmitPrompt failed: %v", err)
	}

	if len(h.surface.appended) != 1 {
		t.Fatalf("appended %d messages, want 1", len(h.surface.appended))
	}
	echo := h.surface.appended[0]
	if echo.Origin != conversation.OriginUser || echo.Text != "Email Bob about potluck Sunday." {
		t.Errorf("echo = %+v", echo)
	}
	if !h.router.Busy() {
		t.Error("prompt did not set busy")
	}
	if len(h.sent) != 1 || string(h.sent[0]) != `{"kind":"prompt","prompt":"Email Bob about potluck Sunday."}` {
		t.Errorf("sent = %q", h.sent)
	}
}

func TestSubmitPromptIgnoresBlankInput(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	for _, input := range []string{"", "   ", "\n\t"} {
		if err := h.router.SubmitPrompt(input); err != nil {
			t.Fatalf("SubmitPrompt(%q) failed: %v", input, err)
		}
	}
	if len(h.sent) != 0 || len(h.surface.appended) != 0 {
		t.Error("blank input produced activity")
	}
}

func TestLoginSuccessStoresTokenAndSchedulesNavigation(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"login_success","token":"abc123"}`))
	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"Welcome."}`))

	if len(h.tokens) != 1 || h.tokens[0] != "abc123" {
		t.Errorf("stored tokens = %v", h.tokens)
	}
	if !h.router.Authenticated() {
		t.Error("authenticated flag not set")
	}
	if len(h.surface.appended) != 1 || h.surface.appended[0].Text != "Welcome." {
		t.Errorf("appended = %v", h.surface.appended)
	}

	// Navigation is scheduled, not immediate.
	if len(h.surface.navigations) != 0 {
		t.Fatal("navigation happened immediately")
	}
	h.sched.fire()
	if len(h.surface.navigations) != 1 || h.surface.navigations[0] != "/" {
		t.Errorf("navigations = %v", h.surface.navigations)
	}
}

func TestLoginSuccessHonorsRedirectURL(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"login_success","token":"abc123","redirect_url":"/project/7"}`))
	h.sched.fire()

	if len(h.surface.navigations) != 1 || h.surface.navigations[0] != "/project/7" {
		t.Errorf("navigations = %v", h.surface.navigations)
	}
}

func TestSuggestedActionsReplaceAndClear(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"action","actions":["Show my tasks","Help"]}`))
	got := h.router.Actions()
	if len(got) != 2 || got[0] != "Show my tasks" {
		t.Errorf("actions = %v", got)
	}

	// Replaced wholesale by the next action frame.
	h.router.HandleRaw([]byte(`{"kind":"action","actions":["Only one"]}`))
	if got := h.router.Actions(); len(got) != 1 || got[0] != "Only one" {
		t.Errorf("actions after replace = %v", got)
	}

	// Clearing twice leaves the panel empty both times, no error.
	h.router.ClearSuggestedActions()
	h.router.ClearSuggestedActions()
	if len(h.router.Actions()) != 0 {
		t.Error("panel not empty after clear")
	}
}

func TestActionsIgnoredWhenDisabled(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"action","actions":["Show my tasks"]}`))
	if len(h.router.Actions()) != 0 {
		t.Error("actions applied despite disabled panel")
	}
}

func TestNewTurnClearsSuggestedActions(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"action","actions":["Show my tasks"]}`))
	if err := h.router.ChooseAction("Show my tasks"); err != nil {
		t.Fatalf("ChooseAction failed: %v", err)
	}

	if len(h.router.Actions()) != 0 {
		t.Error("panel not cleared by new turn")
	}
	if len(h.sent) != 1 || string(h.sent[0]) != `{"kind":"prompt","prompt":"Show my tasks"}` {
		t.Errorf("sent = %q", h.sent)
	}
	if len(h.surface.appended) != 1 || h.surface.appended[0].Origin != conversation.OriginUser {
		t.Errorf("appended = %v", h.surface.appended)
	}
}

func TestAtMostOneLiveNotice(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	// Several using frames before any fade timer elapses.
	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"one"}`))
	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"two"}`))
	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"three"}`))

	live := 0
	for _, n := range h.router.Notices() {
		if !n.Fading {
			live++
			if n.Text != "three" {
				t.Errorf("live notice = %q, want three", n.Text)
			}
		}
	}
	if live != 1 {
		t.Errorf("live notices = %d, want 1", live)
	}
	if total := len(h.router.Notices()); total > 2 {
		t.Errorf("slot holds %d notices, want at most live+fading", total)
	}

	// After the fades run only the live notice remains.
	h.sched.fire()
	notices := h.router.Notices()
	if len(notices) != 1 || notices[0].Fading {
		t.Errorf("notices after fade = %+v", notices)
	}
}

func TestReplyCollapsesNotice(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"searching"}`))
	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"Found it."}`))

	for _, n := range h.router.Notices() {
		if !n.Fading {
			t.Errorf("notice %q still live after reply", n.Text)
		}
	}
	h.sched.fire()
	if len(h.router.Notices()) != 0 {
		t.Errorf("notice slot not empty after fade: %+v", h.router.Notices())
	}
}

func TestNoticesIgnoredWhenDisabled(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"searching"}`))
	if len(h.router.Notices()) != 0 {
		t.Error("notice shown despite disabled feature")
	}
}

func TestChannelLoss(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"typing"}`))
	h.router.HandleRaw([]byte(`{"kind":"using","tool_message":"searching"}`))

	h.router.HandleChannelLost(nil)

	if h.router.Busy() {
		t.Error("indicator still busy after channel loss")
	}
	if len(h.router.Notices()) != 0 {
		t.Error("notice survived channel loss")
	}
	if len(h.surface.appended) != 1 {
		t.Fatalf("appended %d messages, want exactly 1 reload instruction", len(h.surface.appended))
	}

	// Loss is terminal: repeated loss events and late frames do nothing.
	h.router.HandleChannelLost(nil)
	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"late"}`))
	if len(h.surface.appended) != 1 {
		t.Errorf("appended %d messages after terminal loss", len(h.surface.appended))
	}
}

func TestSingleTurnPrune(t *testing.T) {
	h := newHarness(t, allFeatures(), config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"first"}`))
	if h.sched.pending() != 0 {
		t.Fatal("prune scheduled with a single message")
	}

	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"second"}`))
	if h.router.Log().Len() != 2 {
		t.Fatalf("log len = %d before prune", h.router.Log().Len())
	}

	h.sched.fire()
	if h.router.Log().Len() != 1 {
		t.Errorf("log len = %d after prune, want 1", h.router.Log().Len())
	}
	if latest, _ := h.router.Log().Latest(); latest.Text != "second" {
		t.Errorf("kept %q", latest.Text)
	}
	if h.surface.prunes != 1 {
		t.Errorf("surface prunes = %d, want 1", h.surface.prunes)
	}
}

func TestNoPruneWithoutSingleTurn(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"first"}`))
	h.router.HandleRaw([]byte(`{"kind":"reply","reply":"second"}`))
	h.sched.fire()

	if h.router.Log().Len() != 2 {
		t.Errorf("log len = %d, want 2", h.router.Log().Len())
	}
}

func TestCompleteTaskRemoveAck(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	if err := h.router.CompleteTask("42"); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	if len(h.sent) != 1 {
		t.Fatalf("sent %d payloads", len(h.sent))
	}
	payload := string(h.sent[0])
	if payload == "" || payload[0] != '{' {
		t.Fatalf("payload = %q", payload)
	}
	for _, want := range []string{`"type":"complete_task"`, `"task_id":"42"`, `"timestamp":"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload %q missing %q", payload, want)
		}
	}

	// Optimistic: the removal is scheduled without any server round trip.
	if len(h.surface.removedTasks) != 0 {
		t.Fatal("task removed synchronously")
	}
	h.sched.fire()
	if len(h.surface.removedTasks) != 1 || h.surface.removedTasks[0] != "42" {
		t.Errorf("removed = %v", h.surface.removedTasks)
	}
	if h.surface.reloads != 0 {
		t.Error("remove mode triggered a reload")
	}
}

func TestCompleteTaskReloadAck(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckReload)

	if err := h.router.CompleteTask("42"); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	h.sched.fire()

	if h.surface.reloads != 1 {
		t.Errorf("reloads = %d, want 1", h.surface.reloads)
	}
	if len(h.surface.removedTasks) != 0 {
		t.Error("reload mode removed a task element")
	}
}

func TestServerRequestedReload(t *testing.T) {
	h := newHarness(t, config.Features{}, config.AckRemove)

	h.router.HandleRaw([]byte(`{"kind":"command","command":"reload"}`))
	if h.surface.reloads != 0 {
		t.Fatal("reload happened immediately")
	}
	h.sched.fire()
	if h.surface.reloads != 1 {
		t.Errorf("reloads = %d, want 1", h.surface.reloads)
	}
}
