package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// rotateInterval is how long each placeholder prompt stays in the
// empty input field.
const rotateInterval = 6 * time.Second

type placeholderTickMsg struct{}

// placeholderRotator cycles cosmetic example prompts through the input
// placeholder. It has its own timer and no protocol coupling.
type placeholderRotator struct {
	prompts []string
	index   int
}

func newPlaceholderRotator(prompts []string) *placeholderRotator {
	return &placeholderRotator{prompts: prompts}
}

// current returns the active placeholder, or a fallback when none are
// configured.
func (p *placeholderRotator) current() string {
	if len(p.prompts) == 0 {
		return "Type a message..."
	}
	return p.prompts[p.index%len(p.prompts)]
}

// advance moves to the next prompt.
func (p *placeholderRotator) advance() {
	if len(p.prompts) > 1 {
		p.index = (p.index + 1) % len(p.prompts)
	}
}

func placeholderTick() tea.Cmd {
	return tea.Tick(rotateInterval, func(time.Time) tea.Msg {
		return placeholderTickMsg{}
	})
}
