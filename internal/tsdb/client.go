// Package tsdb records output values and schedule firings to InfluxDB.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
)

var (
	// ErrDisabled indicates telemetry is disabled in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected indicates the client is closed.
	ErrNotConnected = errors.New("influxdb: not connected")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

// PointWriter is the subset of the InfluxDB write API used here.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client writes points through the non-blocking, batched write API.
type Client struct {
	client      influxdb2.Client
	writer      PointWriter
	measurement string

	connected bool
	mu        sync.RWMutex
}

// Connect creates the client and verifies the server with a ping.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.BatchSize)).
			SetFlushInterval(uint(cfg.FlushInterval.Duration().Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go logWriteErrors(writeAPI)

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Connected to InfluxDB")

	c := newClient(writeAPI, cfg.Measurement)
	c.client = client
	return c, nil
}

func newClient(writer PointWriter, measurement string) *Client {
	return &Client{writer: writer, measurement: measurement, connected: true}
}

func logWriteErrors(writeAPI api.WriteAPI) {
	for err := range writeAPI.Errors() {
		log.Warn().Err(err).Msg("InfluxDB write failed")
	}
}

// WriteStrength records one output value.
func (c *Client) WriteStrength(at time.Time, strength float64, reason string) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(
		c.measurement,
		map[string]string{"reason": reason},
		map[string]interface{}{
			"strength": strength,
			"level":    int(strength*255 + 0.5),
		},
		at,
	))
}

// WriteFiring records a schedule firing.
func (c *Client) WriteFiring(at time.Time, entries []string) {
	if !c.IsConnected() {
		return
	}
	for _, id := range entries {
		c.writer.WritePoint(write.NewPoint(
			"schedule_fired",
			map[string]string{"entry": id},
			map[string]interface{}{"count": 1},
			at,
		))
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns false once Close has been called.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close flushes pending writes and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
