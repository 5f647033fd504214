// Package onboarding runs the first-launch setup: it asks for the
// Flowstate server and writes the initial settings file.
package onboarding

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"flowchat/config"
)

// IsFirstRun reports whether no settings file exists yet.
func IsFirstRun() bool {
	path, err := config.GetSettingsFile()
	if err != nil {
		return true
	}
	_, err = os.Stat(path)
	return os.IsNotExist(err)
}

// RunWizard collects the server connection settings interactively and
// saves them. Cancelling the form leaves no settings file behind.
func RunWizard() error {
	settings := config.DefaultSettings()
	host := settings.Host
	secure := settings.Secure
	transcript := settings.Transcript
	ack := settings.CompletionAck

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to flowchat").
				Description("A couple of questions and you are ready to chat."),
			huh.NewInput().
				Title("Flowstate server").
				Description("host[:port], without a scheme").
				Value(&host).
				Validate(func(s string) error {
					trimmed := strings.TrimSpace(s)
					if trimmed == "" {
						return fmt.Errorf("server is required")
					}
					if strings.Contains(trimmed, "://") {
						return fmt.Errorf("leave out the scheme")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Use TLS (wss://)?").
				Value(&secure),
			huh.NewSelect[config.CompletionAck]().
				Title("After completing a task").
				Options(
					huh.NewOption("Remove it from the view", config.AckRemove),
					huh.NewOption("Reload the whole view", config.AckReload),
				).
				Value(&ack),
			huh.NewConfirm().
				Title("Keep a local conversation transcript?").
				Value(&transcript),
		),
	).WithShowHelp(false)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	settings.Host = strings.TrimSpace(host)
	settings.Secure = secure
	settings.Transcript = transcript
	settings.CompletionAck = ack

	if err := config.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	fmt.Println("Setup complete. Run `flowchat login` to sign in.")
	return nil
}
