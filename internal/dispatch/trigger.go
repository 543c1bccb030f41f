package dispatch

import "strings"

// Trigger identifies an emergency category.
type Trigger string

const (
	TriggerPolice Trigger = "police"
	TriggerFire   Trigger = "fire"
	TriggerEMS    Trigger = "ems"
	TriggerHelp   Trigger = "help"
	TriggerSOS    Trigger = "sos"
	Trigger911    Trigger = "911"
)

// directTriggers are the flag commands that dispatch immediately. The guided
// intake (!911) is handled separately by the menu flow.
var directTriggers = []Trigger{TriggerPolice, TriggerFire, TriggerEMS, TriggerHelp, TriggerSOS}

// Command returns the radio command token for the trigger.
func (t Trigger) Command() string { return "!" + string(t) }

// Upper renders the trigger for operator-facing notices.
func (t Trigger) Upper() string { return strings.ToUpper(string(t)) }

// MatchTrigger matches a direct SOS trigger as a whole leading token and
// returns the remaining free-text context. A prefix collision inside a longer
// token (e.g. "!fireworks tonight") never fires.
func MatchTrigger(text string) (Trigger, string, bool) {
	trimmed := strings.TrimSpace(text)
	token := trimmed
	rest := ""
	if i := strings.IndexFunc(trimmed, isSpace); i >= 0 {
		token = trimmed[:i]
		rest = strings.TrimSpace(trimmed[i:])
	}
	token = strings.ToLower(token)
	for _, t := range directTriggers {
		if token == t.Command() {
			return t, rest, true
		}
	}
	return "", "", false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

// Menu911 is the guided numeric intake shown to citizens who trigger !911.
const Menu911 = "[SOS] Emergency received.\n" +
	"Reply with a NUMBER:\n" +
	"1 = Fire\n" +
	"2 = Medical\n" +
	"3 = Police\n" +
	"4 = Other\n" +
	"5 = Accident (sent by mistake)"

// MenuSelect maps a bare numeric menu reply to its trigger. falseAlarm is
// true for selection 5 (sent by mistake), which dispatches nothing.
func MenuSelect(reply string) (t Trigger, falseAlarm bool, ok bool) {
	switch strings.TrimSpace(reply) {
	case "1":
		return TriggerFire, false, true
	case "2":
		return TriggerEMS, false, true
	case "3":
		return TriggerPolice, false, true
	case "4":
		return TriggerHelp, false, true
	case "5":
		return "", true, true
	default:
		return "", false, false
	}
}
