package router

import (
	"strconv"
	"strings"

	"github.com/libertymesh/operator/internal/dispatch"
)

// CommandKind is the closed set of packet classifications. Every inbound
// text maps to exactly one kind; anything unparseable is free text.
type CommandKind int

const (
	CmdFreeText CommandKind = iota
	CmdPing
	CmdStatus
	CmdSafe
	CmdMenu
	CmdTrigger
	CmdNumeric
	CmdLockout
	CmdRestrictList
)

// Command is the classified form of one inbound packet.
type Command struct {
	Kind    CommandKind
	Trigger dispatch.Trigger
	Context string
	Number  int
}

// Classify maps raw packet text to its command variant. Trigger tokens must
// match as whole tokens; everything else falls through to free text.
func Classify(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "!ping":
		return Command{Kind: CmdPing}
	case "!status":
		return Command{Kind: CmdStatus}
	case "!safe":
		return Command{Kind: CmdSafe}
	case "!911":
		return Command{Kind: CmdMenu}
	case "!spam":
		return Command{Kind: CmdLockout}
	case "!cancel":
		return Command{Kind: CmdRestrictList}
	}

	if n, err := strconv.Atoi(lower); err == nil && n >= 0 {
		return Command{Kind: CmdNumeric, Number: n}
	}

	if trigger, context, ok := dispatch.MatchTrigger(trimmed); ok {
		return Command{Kind: CmdTrigger, Trigger: trigger, Context: context}
	}

	return Command{Kind: CmdFreeText}
}
