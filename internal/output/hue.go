package output

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/dimmerd/internal/curve"
)

// maxHueFailures is how many consecutive bridge errors are tolerated before
// the sink reports a fatal error to the control loop.
const maxHueFailures = 5

// LightSetter is the part of *huego.Bridge the sink uses.
type LightSetter interface {
	SetLightState(id int, state huego.State) (*huego.Response, error)
}

// HueSink dims a single Hue light. Bridge calls are slow compared to the
// loop tick, so Set only records the latest value and a worker goroutine
// pushes it to the bridge under a rate limit, dropping intermediate values.
type HueSink struct {
	setter  LightSetter
	light   int
	limiter *rate.Limiter

	mu       sync.Mutex
	pending  *curve.Strength
	err      error
	failures int

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHueSink starts the bridge writer. rps limits bridge requests per second.
func NewHueSink(setter LightSetter, light int, rps float64) *HueSink {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &HueSink{
		setter:  setter,
		light:   light,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Set records the value for the writer. It returns the fatal error once the
// bridge has failed too many times in a row.
func (s *HueSink) Set(v curve.Strength) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.pending = &v
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close flushes the latest pending value and stops the writer.
func (s *HueSink) Close() error {
	s.cancel()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *HueSink) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			// last value wins on shutdown, without waiting for the limiter
			if v, ok := s.take(); ok {
				s.apply(v)
			}
			return
		case <-s.wake:
		}

		if err := s.limiter.Wait(s.ctx); err != nil {
			continue
		}
		if v, ok := s.take(); ok {
			s.apply(v)
		}
	}
}

func (s *HueSink) take() (curve.Strength, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return curve.Strength{}, false
	}
	v := *s.pending
	s.pending = nil
	return v, true
}

func (s *HueSink) apply(v curve.Strength) {
	_, err := s.setter.SetLightState(s.light, HueState(v))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failures = 0
		return
	}

	s.failures++
	log.Warn().Err(err).Int("light", s.light).Int("failures", s.failures).Msg("Failed to set Hue light")
	if s.failures >= maxHueFailures && s.err == nil {
		s.err = fmt.Errorf("hue light %d: %d consecutive failures: %w", s.light, s.failures, err)
	}
}

// HueState maps a strength onto the Hue brightness range. Zero turns the
// light off; anything else maps to bri 1..254.
func HueState(v curve.Strength) huego.State {
	if v.Float() <= 0 {
		return huego.State{On: false}
	}
	bri := 1 + math.Round(v.Float()*253)
	return huego.State{On: true, Bri: uint8(bri)}
}
