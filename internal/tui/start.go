package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"flowchat/config"
)

// Start runs the conversation UI until the user quits or the session
// navigates away. It blocks the calling goroutine.
func Start(opts Options) error {
	model := newModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// Scheduled router callbacks and settings reloads arrive from other
	// goroutines; program.Send marshals them onto the update loop.
	model.sched.bind(program.Send)

	watcher, err := config.NewWatcher(
		func(settings *config.Settings) {
			program.Send(settingsChangedMsg{settings: settings})
		},
		func(err error) {
			opts.Logger.Warn().Err(err).Msg("settings watch failed")
		},
	)
	if err == nil {
		if err := watcher.Start(); err != nil {
			opts.Logger.Warn().Err(err).Msg("settings watch unavailable")
		} else {
			defer watcher.Stop()
		}
	} else {
		opts.Logger.Warn().Err(err).Msg("settings watch unavailable")
	}

	_, err = program.Run()
	return err
}
