package mqtt

import (
	"fmt"
	"strings"
)

// Command topic suffixes under <prefix>/cmd/.
const (
	CommandSet        = "set"
	CommandTransition = "transition"
	CommandDay        = "day"
	CommandSchedule   = "schedule"
	CommandClear      = "clear"
)

// Topics builds dimmerd topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "dimmerd"}
//	topics.Command("set") // "dimmerd/cmd/set"
type Topics struct {
	Prefix string
}

// Status is the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// State is the retained topic carrying the last output value.
func (t Topics) State() string {
	return fmt.Sprintf("%s/state", t.Prefix)
}

// Output is the topic the MQTT output driver writes values to.
func (t Topics) Output() string {
	return fmt.Sprintf("%s/output/set", t.Prefix)
}

// Command returns the topic for one command kind.
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/cmd/%s", t.Prefix, name)
}

// AllCommands is the wildcard subscription for every command topic.
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/cmd/+", t.Prefix)
}

// CommandName extracts the command kind from a command topic.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.Prefix+"/cmd/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
