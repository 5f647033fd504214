package protocol

import (
	"encoding/json"
	"time"
)

// Kind discriminates the structured frame variants.
type Kind string

const (
	// Inbound kinds
	KindCommand Kind = "command"
	KindReply   Kind = "reply"
	KindAction  Kind = "action"
	KindUsing   Kind = "using"
	KindError   Kind = "error"

	// Outbound kinds
	KindPrompt Kind = "prompt"
)

// Command sub-tags carried by KindCommand frames.
const (
	CommandTyping       = "typing"
	CommandLoginSuccess = "login_success"
	CommandReload       = "reload"
)

// TypingSentinel is the legacy plain-text frame that signals the busy
// state. Any other non-JSON payload is a legacy reply.
const TypingSentinel = "!!COMMAND: typing!!"

// Frame is one structured protocol unit. The wire format is flat: a
// single JSON object whose meaning is selected by Kind, with the
// variant's fields at the top level. Kinds unknown to this version are
// carried through verbatim so the router can decide what to do with
// them.
type Frame struct {
	Kind Kind `json:"kind"`

	// Type is the older discriminator some server paths still emit;
	// Decode folds a type-tagged error into KindError.
	Type string `json:"type,omitempty"`

	// command
	Command     string `json:"command,omitempty"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`

	// reply
	Reply string `json:"reply,omitempty"`

	// action
	Actions []string `json:"actions,omitempty"`

	// using
	ToolMessage string `json:"tool_message,omitempty"`

	// prompt (outbound)
	Prompt string `json:"prompt,omitempty"`

	// error (server diagnostic for malformed client frames)
	Error string `json:"error,omitempty"`
}

// Legacy is a plain-string frame from a server that predates the
// structured protocol.
type Legacy struct {
	// Typing is set when the payload was the typing sentinel; Text is
	// empty in that case.
	Typing bool
	Text   string
}

// Inbound is the decoded form of one received payload: either a
// structured Frame or a Legacy string.
type Inbound interface {
	inbound()
}

func (Frame) inbound()  {}
func (Legacy) inbound() {}

// Decode classifies one raw payload. It never fails: anything that is
// not a JSON object becomes a Legacy frame, so a server emitting either
// format is handled without dropping the message. A JSON object without
// a kind field decodes to a Frame with an empty Kind, which the router
// treats like an unknown kind.
func Decode(raw []byte) Inbound {
	trimmed := firstNonSpace(raw)
	if trimmed != '{' {
		return decodeLegacy(raw)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return decodeLegacy(raw)
	}
	if frame.Kind == "" && frame.Type == "error" {
		frame.Kind = KindError
	}
	return frame
}

func decodeLegacy(raw []byte) Legacy {
	if string(raw) == TypingSentinel {
		return Legacy{Typing: true}
	}
	return Legacy{Text: string(raw)}
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

// EncodePrompt serializes a user prompt. The client always emits the
// structured form, never the legacy one.
func EncodePrompt(text string) ([]byte, error) {
	return json.Marshal(Frame{Kind: KindPrompt, Prompt: text})
}

// CompletionEvent marks a task as done. It predates the kind-tagged
// frames and keeps its historical "type" discriminator on the wire.
type CompletionEvent struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
}

// EncodeCompletion serializes a fire-and-forget task completion with a
// client-side timestamp.
func EncodeCompletion(taskID string, at time.Time) ([]byte, error) {
	return json.Marshal(CompletionEvent{
		Type:      "complete_task",
		TaskID:    taskID,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
}
