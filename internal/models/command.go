package models

// Command is a user action bound to a menu entry or key.
type Command int

const (
	CommandNone Command = iota
	CommandConnect
	CommandDisconnect
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandConnect:
		return "connect"
	case CommandDisconnect:
		return "disconnect"
	case CommandQuit:
		return "quit"
	default:
		return "none"
	}
}
