package output

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/mqtt"
)

// Publisher queues an MQTT message without blocking.
type Publisher interface {
	PublishAsync(topic string, payload []byte, retained bool) error
}

// MQTTSink publishes each distinct value as a decimal string to a retained
// topic, for a remote dimmer to pick up.
type MQTTSink struct {
	pub     Publisher
	topic   string
	last    string
	offline bool
}

func NewMQTTSink(pub Publisher, topic string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic}
}

// Set publishes the value. A disconnected broker is not fatal: the client
// reconnects on its own and the next value goes through.
func (s *MQTTSink) Set(v curve.Strength) error {
	payload := strconv.FormatFloat(v.Float(), 'f', 4, 64)
	if payload == s.last && !s.offline {
		return nil
	}

	err := s.pub.PublishAsync(s.topic, []byte(payload), true)
	switch {
	case err == nil:
		if s.offline {
			log.Info().Str("topic", s.topic).Msg("MQTT output back online")
		}
		s.offline = false
		s.last = payload
		return nil
	case errors.Is(err, mqtt.ErrNotConnected):
		if !s.offline {
			log.Warn().Str("topic", s.topic).Msg("MQTT output offline, dropping values until reconnect")
		}
		s.offline = true
		return nil
	default:
		return err
	}
}

func (s *MQTTSink) Close() error { return nil }
