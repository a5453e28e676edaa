package execution

import (
	"fmt"

	"keyblast/internal/macro"
)

// CommandKind identifies a worker-to-caller message.
type CommandKind int

const (
	// CommandInject asks the caller to inject Segment.
	CommandInject CommandKind = iota
	// CommandCompleted reports that every segment was emitted.
	CommandCompleted
	// CommandCancelled reports that the run stopped early.
	CommandCancelled
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CommandInject:
		return "inject"
	case CommandCompleted:
		return "completed"
	case CommandCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no command may follow this one.
func (k CommandKind) Terminal() bool {
	return k == CommandCompleted || k == CommandCancelled
}

// Command is one message on an invocation's command channel.
type Command struct {
	Kind    CommandKind
	Index   int
	Segment macro.Segment
}

func (c Command) String() string {
	if c.Kind == CommandInject {
		return fmt.Sprintf("inject[%d] %s", c.Index, c.Segment)
	}
	return c.Kind.String()
}
