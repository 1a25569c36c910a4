package output

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/curve"
)

// exportWait bounds how long we wait for udev to create an exported channel.
const (
	exportWait  = time.Second
	exportProbe = 20 * time.Millisecond
)

// SysfsPWM drives a Linux PWM channel through /sys/class/pwm. The duty cycle
// is strength * period.
type SysfsPWM struct {
	dir    string
	period time.Duration
	duty   int64
}

// OpenSysfsPWM exports (if needed), configures and enables a PWM channel.
func OpenSysfsPWM(root string, chip, channel int, period time.Duration) (*SysfsPWM, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm period must be positive, got %s", period)
	}

	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel: %w", err)
		}
		if err := waitForDir(dir, exportWait); err != nil {
			return nil, err
		}
	}

	p := &SysfsPWM{dir: dir, period: period, duty: -1}

	// duty must never exceed period, so zero it before changing the period
	if err := p.writeDuty(0); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, "period"), durationNanos(period)); err != nil {
		return nil, fmt.Errorf("set pwm period: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("enable pwm: %w", err)
	}

	log.Info().Str("channel", dir).Dur("period", period).Msg("PWM output enabled")
	return p, nil
}

// Set writes the duty cycle. Unchanged values are not rewritten.
func (p *SysfsPWM) Set(s curve.Strength) error {
	duty := int64(math.Round(s.Float() * float64(p.period.Nanoseconds())))
	if duty == p.duty {
		return nil
	}
	return p.writeDuty(duty)
}

// Close disables the channel, which turns the output off whatever the
// last duty cycle was.
func (p *SysfsPWM) Close() error {
	if err := writeFile(filepath.Join(p.dir, "enable"), "0"); err != nil {
		return fmt.Errorf("disable pwm: %w", err)
	}
	return nil
}

func (p *SysfsPWM) writeDuty(duty int64) error {
	if err := writeFile(filepath.Join(p.dir, "duty_cycle"), strconv.FormatInt(duty, 10)); err != nil {
		return fmt.Errorf("set pwm duty cycle: %w", err)
	}
	p.duty = duty
	return nil
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func waitForDir(dir string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(dir); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pwm channel %s did not appear after export", dir)
		}
		time.Sleep(exportProbe)
	}
}
