// Package router drives the conversation state machine. It classifies
// decoded frames, owns every piece of ephemeral UI state (busy
// indicator, tool notices, suggested actions, the authenticated flag),
// and talks to the hosting view only through the Surface interface, so
// the protocol core never touches concrete UI elements.
package router

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flowchat/config"
	"flowchat/internal/conversation"
	"flowchat/internal/protocol"
)

// Fixed delays for scheduled transitions.
const (
	// NavigateDelay is how long after login_success the client waits
	// before navigating to the home view.
	NavigateDelay = 5 * time.Second
	// NoticeFadeDelay is the fade-out window of a superseded tool notice.
	NoticeFadeDelay = 500 * time.Millisecond
	// PruneDelay is the fade window before older messages are removed
	// under the single-visible-turn policy.
	PruneDelay = 1000 * time.Millisecond
	// AckDelay is the optimistic acknowledgement delay after a task
	// completion is sent.
	AckDelay = 1500 * time.Millisecond
	// ReloadDelay is applied to a server-requested view reload.
	ReloadDelay = 1 * time.Second
)

// Surface is the capability interface a hosting view implements. The
// router calls it from a single goroutine, in event order.
type Surface interface {
	// AppendMessage renders one new conversation entry.
	AppendMessage(msg conversation.Message)
	// PruneMessages re-renders after the single-visible-turn policy
	// removed older entries from the log.
	PruneMessages()
	// SetBusy flips the activity indicator.
	SetBusy(busy bool)
	// SetToolNotices renders the tool notice slot; the slice holds at
	// most one live notice plus at most one fading one.
	SetToolNotices(notices []ToolNotice)
	// SetSuggestedActions replaces the suggested-actions panel. An
	// empty slice clears it.
	SetSuggestedActions(labels []string)
	// NavigateHome switches to the home view after a login.
	NavigateHome(target string)
	// RemoveTask drops one task element after an optimistic completion.
	RemoveTask(taskID string)
	// ReloadView reloads the whole view.
	ReloadView()
}

// Scheduler runs a callback after a delay on the router's goroutine.
// The returned cancel is safe to call after the callback has fired.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// Sender carries outbound payloads to the channel.
type Sender func(payload []byte) error

// TokenSink persists the credential delivered by login_success.
type TokenSink func(token string) error

// Recorder receives every appended message, e.g. for the transcript
// store. Record errors are logged, never surfaced.
type Recorder interface {
	Record(msg conversation.Message) error
}

// ToolNotice is the single-slot transient notice describing the
// agent's current tool invocation.
type ToolNotice struct {
	ID     int
	Text   string
	Fading bool
}

// Options configures a Router.
type Options struct {
	Surface   Surface
	Scheduler Scheduler
	Send      Sender
	Features  config.Features
	Ack       config.CompletionAck
	SaveToken TokenSink
	Recorder  Recorder
	Logger    zerolog.Logger
}

// Router is not safe for concurrent use: exactly one goroutine (the
// hosting event loop) may call its methods, mirroring how frames are
// processed strictly in delivery order.
type Router struct {
	surface  Surface
	sched    Scheduler
	send     Sender
	features config.Features
	ack      config.CompletionAck
	token    TokenSink
	recorder Recorder
	logger   zerolog.Logger

	log *conversation.Log

	busy          bool
	authenticated bool
	terminated    bool
	navPending    bool

	notices      []ToolNotice
	noticeSeq    int
	cancelFades  map[int]func()
	actions      []string
	cancelPrune  func()
	cancelNav    func()
	cancelReload func()
}

func New(opts Options) *Router {
	return &Router{
		surface:     opts.Surface,
		sched:       opts.Scheduler,
		send:        opts.Send,
		features:    opts.Features,
		ack:         opts.Ack,
		token:       opts.SaveToken,
		recorder:    opts.Recorder,
		logger:      opts.Logger.With().Str("component", "router").Logger(),
		log:         conversation.NewLog(),
		cancelFades: make(map[int]func()),
	}
}

// Log exposes the conversation view model for rendering.
func (r *Router) Log() *conversation.Log { return r.log }

// Busy reports the activity indicator state.
func (r *Router) Busy() bool { return r.busy }

// Authenticated reports whether login_success has been seen.
func (r *Router) Authenticated() bool { return r.authenticated }

// Notices returns the current tool notice slot contents.
func (r *Router) Notices() []ToolNotice {
	out := make([]ToolNotice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Actions returns the current suggested actions.
func (r *Router) Actions() []string {
	out := make([]string, len(r.actions))
	copy(out, r.actions)
	return out
}

// HandleRaw classifies and dispatches one inbound payload. Payloads
// arriving after the channel was lost are dropped.
func (r *Router) HandleRaw(data []byte) {
	if r.terminated {
		return
	}

	switch decoded := protocol.Decode(data).(type) {
	case protocol.Frame:
		r.handleFrame(decoded)
	case protocol.Legacy:
		r.handleLegacy(decoded)
	}
}

func (r *Router) handleFrame(frame protocol.Frame) {
	switch frame.Kind {
	case protocol.KindCommand:
		r.handleCommand(frame)
	case protocol.KindReply:
		r.setBusy(false)
		r.collapseNotice()
		r.appendMessage(conversation.OriginSystem, frame.Reply)
	case protocol.KindAction:
		if !r.features.SuggestedActions {
			return
		}
		r.actions = append(r.actions[:0], frame.Actions...)
		r.surface.SetSuggestedActions(r.Actions())
	case protocol.KindUsing:
		if !r.features.ToolNotices {
			return
		}
		r.showNotice(frame.ToolMessage)
	case protocol.KindError:
		r.logger.Warn().Str("error", frame.Error).Msg("server rejected a frame")
	default:
		// Forward compatibility: unknown kinds are logged, never fatal,
		// and never become conversation messages.
		r.logger.Debug().Str("kind", string(frame.Kind)).Msg("ignoring unknown frame kind")
	}
}

func (r *Router) handleCommand(frame protocol.Frame) {
	switch frame.Command {
	case protocol.CommandTyping:
		r.setBusy(true)
	case protocol.CommandLoginSuccess:
		r.setBusy(false)
		if frame.Token != "" && r.token != nil {
			if err := r.token(frame.Token); err != nil {
				r.logger.Error().Err(err).Msg("failed to store session token")
			}
		}
		r.authenticated = true
		r.scheduleNavigation(frame.RedirectURL)
	case protocol.CommandReload:
		r.scheduleReload(ReloadDelay)
	default:
		r.logger.Debug().Str("command", frame.Command).Msg("ignoring unknown command")
	}
}

func (r *Router) handleLegacy(legacy protocol.Legacy) {
	if legacy.Typing {
		r.setBusy(true)
		return
	}
	r.setBusy(false)
	r.appendMessage(conversation.OriginSystem, legacy.Text)
}

// SubmitPrompt starts a new turn from user input. Empty input after
// trimming is ignored. The user message is echoed locally before the
// send, and the suggested actions of the previous turn are cleared.
func (r *Router) SubmitPrompt(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || r.terminated {
		return nil
	}

	r.appendMessage(conversation.OriginUser, trimmed)
	r.setBusy(true)
	r.ClearSuggestedActions()

	payload, err := protocol.EncodePrompt(trimmed)
	if err != nil {
		return err
	}
	return r.send(payload)
}

// ChooseAction submits a suggested action as if the user had typed its
// label.
func (r *Router) ChooseAction(label string) error {
	return r.SubmitPrompt(label)
}

// ClearSuggestedActions empties the panel. Clearing an already empty
// panel is a no-op.
func (r *Router) ClearSuggestedActions() {
	if len(r.actions) == 0 {
		r.surface.SetSuggestedActions(nil)
		return
	}
	r.actions = r.actions[:0]
	r.surface.SetSuggestedActions(nil)
}

// CompleteTask sends a fire-and-forget completion event and applies
// the configured optimistic acknowledgement. No server response is
// awaited.
func (r *Router) CompleteTask(taskID string) error {
	payload, err := protocol.EncodeCompletion(taskID, time.Now())
	if err != nil {
		return err
	}
	if err := r.send(payload); err != nil {
		return err
	}

	switch r.ack {
	case config.AckReload:
		r.scheduleReload(AckDelay)
	default:
		r.sched.After(AckDelay, func() {
			r.surface.RemoveTask(taskID)
		})
	}
	return nil
}

// HandleChannelLost reacts to the terminal loss of the channel: the
// indicator goes idle, any live notice collapses, and exactly one
// system message instructs the user to restart. Further inbound
// payloads are dropped.
func (r *Router) HandleChannelLost(err error) {
	if r.terminated {
		return
	}
	r.terminated = true

	if err != nil {
		r.logger.Warn().Err(err).Msg("channel lost")
	} else {
		r.logger.Info().Msg("channel closed")
	}

	r.setBusy(false)
	r.dropNotices()
	r.appendMessage(conversation.OriginSystem,
		"Connection lost. Restart flowchat to start a new conversation.")
}

func (r *Router) setBusy(busy bool) {
	if r.busy == busy {
		return
	}
	r.busy = busy
	r.surface.SetBusy(busy)
}

func (r *Router) appendMessage(origin conversation.Origin, text string) {
	msg := r.log.Append(origin, text)
	if r.recorder != nil {
		if err := r.recorder.Record(msg); err != nil {
			r.logger.Error().Err(err).Msg("transcript record failed")
		}
	}
	r.surface.AppendMessage(msg)
	r.schedulePrune()
}

func (r *Router) schedulePrune() {
	if !r.features.SingleTurn || r.log.Len() <= 1 {
		return
	}
	if r.cancelPrune != nil {
		r.cancelPrune()
	}
	r.cancelPrune = r.sched.After(PruneDelay, func() {
		r.cancelPrune = nil
		if r.log.PruneToLatest() > 0 {
			r.surface.PruneMessages()
		}
	})
}

func (r *Router) scheduleNavigation(target string) {
	if r.navPending {
		return
	}
	r.navPending = true
	if target == "" {
		target = "/"
	}
	r.cancelNav = r.sched.After(NavigateDelay, func() {
		r.surface.NavigateHome(target)
	})
}

func (r *Router) scheduleReload(delay time.Duration) {
	if r.cancelReload != nil {
		r.cancelReload()
	}
	r.cancelReload = r.sched.After(delay, func() {
		r.cancelReload = nil
		r.surface.ReloadView()
	})
}

// showNotice replaces the tool notice slot. The superseded notice is
// kept in a fading state for NoticeFadeDelay rather than vanishing
// synchronously; a notice that was already fading is dropped on the
// spot so at most one fading entry exists.
func (r *Router) showNotice(text string) {
	kept := r.notices[:0]
	for _, n := range r.notices {
		if n.Fading {
			r.cancelFade(n.ID)
			continue
		}
		n.Fading = true
		id := n.ID
		r.cancelFades[id] = r.sched.After(NoticeFadeDelay, func() {
			r.removeNotice(id)
		})
		kept = append(kept, n)
	}
	r.notices = kept

	r.noticeSeq++
	r.notices = append(r.notices, ToolNotice{ID: r.noticeSeq, Text: text})
	r.surface.SetToolNotices(r.Notices())
}

// collapseNotice fades the live notice out, as when a reply supersedes
// the tool activity it described.
func (r *Router) collapseNotice() {
	changed := false
	for i, n := range r.notices {
		if n.Fading {
			continue
		}
		r.notices[i].Fading = true
		id := n.ID
		r.cancelFades[id] = r.sched.After(NoticeFadeDelay, func() {
			r.removeNotice(id)
		})
		changed = true
	}
	if changed {
		r.surface.SetToolNotices(r.Notices())
	}
}

// dropNotices clears the slot immediately, cancelling pending fades so
// no timer fires against removed state.
func (r *Router) dropNotices() {
	for id := range r.cancelFades {
		r.cancelFade(id)
	}
	if len(r.notices) == 0 {
		return
	}
	r.notices = nil
	r.surface.SetToolNotices(nil)
}

func (r *Router) removeNotice(id int) {
	delete(r.cancelFades, id)
	for i, n := range r.notices {
		if n.ID == id {
			r.notices = append(r.notices[:i], r.notices[i+1:]...)
			r.surface.SetToolNotices(r.Notices())
			return
		}
	}
}

func (r *Router) cancelFade(id int) {
	if cancel, ok := r.cancelFades[id]; ok {
		cancel()
		delete(r.cancelFades, id)
	}
}
