package channel

import (
	"fmt"
	"net/url"
)

// Mode selects which conversation endpoint the channel connects to.
type Mode string

const (
	// ModeChat is the task conversation, optionally scoped to a project.
	ModeChat Mode = "chat"
	// ModeLearnMore is the documentation/help conversation.
	ModeLearnMore Mode = "learn-more"
	// ModeLogin is the conversational login flow.
	ModeLogin Mode = "login"
)

// Address builds the channel URL: the secure or insecure scheme by the
// transport setting, the host, and the mode's base path. A conversation
// scope, when present, is appended as a path segment of the chat
// endpoint; it is fixed for the connection's lifetime.
func Address(host string, secure bool, mode Mode, scope string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("channel host is empty")
	}

	scheme := "ws"
	if secure {
		scheme = "wss"
	}

	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}
	switch mode {
	case ModeChat, "":
		if scope != "" {
			u.Path = "/ws/" + scope
		}
	case ModeLearnMore:
		u.Path = "/ws/learn-more"
	case ModeLogin:
		u.Path = "/ws/login"
	default:
		return "", fmt.Errorf("unknown conversation mode %q", mode)
	}

	return u.String(), nil
}
