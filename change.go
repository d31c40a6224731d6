package arbor

import (
	"fmt"
)

type (
	// Write is a single entity handed to Backend.SubmitWrites.
	Write struct {
		Key  Key
		Node Node
	}

	Op int
)

const (
	OpNone   Op = 0
	OpSave   Op = 1
	OpDelete Op = 2
	OpLoad   Op = 3
)

func (w Write) String() string {
	return fmt.Sprintf("%v => %s", w.Key, Dump(w.Node))
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	case OpLoad:
		return "load"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
