package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flowchat/config"
	"flowchat/internal/channel"
	"flowchat/internal/conversation"
	"flowchat/internal/logging"
	"flowchat/internal/onboarding"
	"flowchat/internal/protocol"
	"flowchat/internal/router"
	"flowchat/internal/session"
	"flowchat/internal/timeutil"
	"flowchat/internal/transcript"
	"flowchat/internal/tui"
	"flowchat/updater"
	"flowchat/version"
)

var (
	debugLogging bool
	projectScope string
)

var rootCmd = &cobra.Command{
	Use:   "flowchat",
	Short: "Conversational client for the Flowstate task agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConversation(channel.ModeChat, projectScope)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the task conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConversation(channel.ModeChat, projectScope)
	},
}

var learnMoreCmd = &cobra.Command{
	Use:   "learn-more",
	Short: "Open the documentation conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConversation(channel.ModeLearnMore, "")
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConversation(channel.ModeLogin, "")
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed without opening the UI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComplete(args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [conversation]",
	Short: "Show recent transcript entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		}
		return runHistory(label)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.Delete(); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Update flowchat to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := updater.Check()
		if err != nil {
			return err
		}
		if !update.Available {
			fmt.Printf("flowchat %s is up to date.\n", update.CurrentVersion)
			return nil
		}
		fmt.Printf("Updating %s -> %s...\n", update.CurrentVersion, update.LatestVersion)
		if err := updater.Apply(update); err != nil {
			return err
		}
		fmt.Println("Done.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the flowchat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&projectScope, "project", "", "scope the conversation to one project")
	chatCmd.Flags().StringVar(&projectScope, "project", "", "scope the conversation to one project")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(learnMoreCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(versionCmd)
}

func conversationLabel(mode channel.Mode, scope string) string {
	if mode == channel.ModeChat && scope != "" {
		return string(mode) + "/" + scope
	}
	return string(mode)
}

func runConversation(mode channel.Mode, scope string) error {
	if onboarding.IsFirstRun() {
		if err := onboarding.RunWizard(); err != nil {
			return err
		}
	}
	if err := config.EnsureSettingsExist(); err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.Open(debugLogging)
	if err != nil {
		return err
	}
	defer closeLog()

	token, err := session.Load()
	if err != nil && !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
		logger.Warn().Err(err).Msg("session token unavailable")
	}
	if mode != channel.ModeLogin && token == "" {
		fmt.Println("No session found. Run `flowchat login` first.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := channel.Dial(ctx, channel.Config{
		Host:   settings.Host,
		Secure: settings.Secure,
		Mode:   mode,
		Scope:  scope,
		Token:  token,
	}, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", settings.Host, err)
	}
	defer client.Close()

	var recorder router.Recorder
	if settings.Transcript {
		path, err := config.GetTranscriptPath()
		if err != nil {
			return err
		}
		store, err := transcript.Open(path)
		if err != nil {
			logger.Warn().Err(err).Msg("transcript store unavailable")
		} else {
			defer store.Close()
			recorder = store.Session(conversationLabel(mode, scope))
		}
	}

	return tui.Start(tui.Options{
		Client:       client,
		Mode:         mode,
		Scope:        scope,
		Features:     settings.FeaturesFor(string(mode)),
		Ack:          settings.CompletionAck,
		Placeholders: settings.Placeholders,
		SaveToken:    session.Save,
		Recorder:     recorder,
		Logger:       logger,
	})
}

// runComplete sends one completion event over a short-lived channel.
// The event is fire-and-forget, so there is no response to wait for.
func runComplete(taskID string) error {
	if err := config.EnsureSettingsExist(); err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.Open(debugLogging)
	if err != nil {
		return err
	}
	defer closeLog()

	token, err := session.Load()
	if err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := channel.Dial(ctx, channel.Config{
		Host:   settings.Host,
		Secure: settings.Secure,
		Mode:   channel.ModeChat,
		Token:  token,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", settings.Host, err)
	}
	defer client.Close()

	payload, err := protocol.EncodeCompletion(taskID, time.Now())
	if err != nil {
		return err
	}
	if err := client.Send(payload); err != nil {
		return err
	}

	fmt.Printf("Task %s marked complete.\n", taskID)
	return nil
}

func runHistory(label string) error {
	path, err := config.GetTranscriptPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Println("No transcript yet.")
		return nil
	}

	store, err := transcript.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if label == "" {
		labels, err := store.Conversations()
		if err != nil {
			return err
		}
		if len(labels) == 0 {
			fmt.Println("No transcript yet.")
			return nil
		}
		if len(labels) > 1 {
			fmt.Println("Conversations:")
			for _, l := range labels {
				fmt.Printf("  %s\n", l)
			}
			fmt.Println("\nRun `flowchat history <conversation>` to view one.")
			return nil
		}
		label = labels[0]
	}

	entries, err := store.Recent(label, 50)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No entries for %s.\n", label)
		return nil
	}

	now := time.Now()
	for _, e := range entries {
		who := "flowstate"
		if e.Origin == conversation.OriginUser {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", timeutil.FormatRelativeTime(e.At, now), who, e.Text)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
