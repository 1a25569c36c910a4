// Package output implements the dimmable outputs the control loop writes to.
package output

import (
	"fmt"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/curve"
)

// Sink is an output owned by the control loop.
type Sink interface {
	Set(s curve.Strength) error
	Close() error
}

// Open builds the sink selected by cfg.Driver. pub is only used by the mqtt
// driver and may be nil otherwise.
func Open(cfg config.OutputConfig, pub Publisher, mqttTopic string) (Sink, error) {
	switch cfg.Driver {
	case config.DriverLog, "":
		return NewLogSink(log.Logger), nil

	case config.DriverSysfs:
		return OpenSysfsPWM(cfg.Sysfs.Root, cfg.Sysfs.Chip, cfg.Sysfs.Channel, cfg.Sysfs.Period.Duration())

	case config.DriverHue:
		if cfg.Hue.Bridge == "" || cfg.Hue.Light <= 0 {
			return nil, fmt.Errorf("hue output needs bridge and light")
		}
		bridge := huego.New(cfg.Hue.Bridge, cfg.Hue.Token)
		return NewHueSink(bridge, cfg.Hue.Light, cfg.Hue.RateLimitRPS), nil

	case config.DriverMQTT:
		if pub == nil {
			return nil, fmt.Errorf("mqtt output needs mqtt.enabled")
		}
		topic := cfg.MQTT.Topic
		if topic == "" {
			topic = mqttTopic
		}
		return NewMQTTSink(pub, topic), nil

	default:
		return nil, fmt.Errorf("unknown output driver %q", cfg.Driver)
	}
}

// durationNanos formats a duration the way sysfs expects it.
func durationNanos(d time.Duration) string {
	return fmt.Sprintf("%d", d.Nanoseconds())
}
