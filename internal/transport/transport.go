// Package transport defines the Transport adapter seam (spec §6) and ships
// one concrete implementation, Telegram, grounded on the teacher's
// channels.TelegramChannel. A transport turns platform-specific events into
// session.InboundMessage/OutboundMessage and routes recognized slash
// commands ({stop|reset|status|help}) separately from ordinary turns.
package transport

import (
	"context"

	"github.com/stewardhq/steward/internal/session"
)

// Command is one of the four recognized slash-commands (spec §6); any other
// leading-slash text falls through to the orchestrator as an ordinary
// message.
type Command string

const (
	CommandStop   Command = "stop"
	CommandReset  Command = "reset"
	CommandStatus Command = "status"
	CommandHelp   Command = "help"
)

// MessageHandler turns one inbound platform message into a reply. Wired to
// session.Orchestrator.HandleMessage by the caller.
type MessageHandler func(ctx context.Context, in session.InboundMessage) (*session.OutboundMessage, error)

// CommandHandler handles one recognized slash-command.
type CommandHandler func(ctx context.Context, cmd Command, in session.InboundMessage) (*session.OutboundMessage, error)

// Transport is the seam spec §6 names: "Each transport implements
// onMessage, onCommand, sendToChannel." Start/Stop bracket the transport's
// connection lifecycle; OnMessage/OnCommand register the handlers a
// transport dispatches to once connected.
type Transport interface {
	Name() string

	// OnMessage/OnCommand must be called before Start.
	OnMessage(handler MessageHandler)
	OnCommand(handler CommandHandler)

	// Start blocks until ctx is canceled or a fatal connection error occurs.
	Start(ctx context.Context) error
	Stop()

	// SendToChannel delivers text (and optional images) to a channel
	// unprompted, used by scheduler and subagent delivery.
	SendToChannel(ctx context.Context, channelID string, text string, images []session.Block) error
}

// ParseCommand reports whether text is one of the four recognized
// slash-commands and returns it with the leading slash stripped. Anything
// else, including unrecognized slash-commands, is not a Command.
func ParseCommand(text string) (Command, bool) {
	switch text {
	case "/stop":
		return CommandStop, true
	case "/reset":
		return CommandReset, true
	case "/status":
		return CommandStatus, true
	case "/help":
		return CommandHelp, true
	default:
		return "", false
	}
}
