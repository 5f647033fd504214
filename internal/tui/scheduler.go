package tui

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// scheduledMsg carries a due router callback into the Bubble Tea event
// loop so it runs on the UI goroutine, never concurrently with Update.
type scheduledMsg struct {
	fn func()
}

// teaScheduler implements router.Scheduler on top of time.AfterFunc.
// The fired callback is not run directly; it is posted to the program,
// which serializes it with every other event.
type teaScheduler struct {
	mu   sync.Mutex
	send func(msg tea.Msg)
	// queued holds callbacks that came due before the program was bound.
	queued []func()
}

func newTeaScheduler() *teaScheduler {
	return &teaScheduler{}
}

// bind attaches the running program's Send. Callbacks that fired
// before binding are flushed in order.
func (s *teaScheduler) bind(send func(msg tea.Msg)) {
	s.mu.Lock()
	s.send = send
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	for _, fn := range queued {
		send(scheduledMsg{fn: fn})
	}
}

func (s *teaScheduler) After(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool

	timer := time.AfterFunc(d, func() {
		if cancelled.Load() {
			return
		}
		s.mu.Lock()
		send := s.send
		if send == nil {
			s.queued = append(s.queued, fn)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		send(scheduledMsg{fn: func() {
			if !cancelled.Load() {
				fn()
			}
		}})
	})

	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}
