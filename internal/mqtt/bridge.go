package mqtt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/engine"
)

// Dispatcher is the part of command.Dispatcher the bridge needs.
type Dispatcher interface {
	Dispatch(source command.Source, cmd engine.Command) (string, error)
	Reject(source command.Source, reason error)
}

// transitionMessage is the payload of <prefix>/cmd/transition.
type transitionMessage struct {
	Action string `json:"action"`
	command.TransitionRequest
}

// Bridge turns messages on <prefix>/cmd/+ into engine commands.
type Bridge struct {
	topics     Topics
	dispatcher Dispatcher
	loc        *time.Location
	now        func() time.Time
}

// NewBridge creates a command bridge. loc is the schedule timezone used for
// schedules added over MQTT.
func NewBridge(topics Topics, dispatcher Dispatcher, loc *time.Location) *Bridge {
	if loc == nil {
		loc = time.Local
	}
	return &Bridge{topics: topics, dispatcher: dispatcher, loc: loc, now: time.Now}
}

// Start subscribes to every command topic.
func (b *Bridge) Start(client *Client) error {
	if err := client.Subscribe(b.topics.AllCommands(), 1, b.Handle); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	log.Info().Str("topic", b.topics.AllCommands()).Msg("MQTT command bridge subscribed")
	return nil
}

// Handle is the MessageHandler for command topics.
func (b *Bridge) Handle(topic string, payload []byte) error {
	name, ok := b.topics.CommandName(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", command.ErrInvalid, topic)
	}

	cmd, err := b.parse(name, payload)
	if err != nil {
		b.dispatcher.Reject(command.SourceMQTT, err)
		return err
	}

	_, err = b.dispatcher.Dispatch(command.SourceMQTT, cmd)
	return err
}

func (b *Bridge) parse(name string, payload []byte) (engine.Command, error) {
	switch name {
	case CommandSet:
		s, err := command.ParseStrength(string(payload))
		if err != nil {
			return nil, err
		}
		return engine.SetImmediate{Strength: s}, nil

	case CommandTransition:
		var msg transitionMessage
		if err := command.DecodeJSON(bytes.NewReader(payload), &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			msg.Action = command.ActionPreview
		}
		return command.TransitionCommand(msg.Action, msg.TransitionRequest)

	case CommandDay:
		var req command.DayRequest
		if err := command.DecodeJSON(bytes.NewReader(payload), &req); err != nil {
			return nil, err
		}
		return req.Command()

	case CommandSchedule:
		var req command.ScheduleRequest
		if err := command.DecodeJSON(bytes.NewReader(payload), &req); err != nil {
			return nil, err
		}
		return req.Command(b.now(), b.loc)

	case CommandClear:
		return engine.ClearAuxiliarySchedules{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", command.ErrInvalid, name)
	}
}
