package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "init.lua")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`
		local dimmer = require("dimmer")
		dimmer.daily("21:30", "evening")
		dimmer.day("sunday", nil)
	`), 0o644))

	path := writeConfig(t, dir, `
schedule:
  timezone: UTC
  default: "07:15"
script: `+scriptPath+`
`)

	out, err := execute(t, "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok (output: log)")
	assert.Contains(t, out, "script ok (2 commands at load)")
}

func TestCheck_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad day time": `
schedule:
  timezone: UTC
  days:
    monday: "25:00"
`,
		"bad transition": `
schedule:
  timezone: UTC
  transition:
    to: 3
    time: 1s
    interpolation: linear
`,
		"mqtt output without broker": `
output:
  driver: mqtt
`,
		"unknown driver": `
output:
  driver: dmx
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), body)
			_, err := execute(t, "check", "-c", path)
			assert.Error(t, err)
		})
	}
}

func TestSchedule(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
schedule:
  timezone: UTC
  days:
    saturday: "10:00"
`)

	out, err := execute(t, "schedule", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Weekly schedule "primary" (timezone: UTC)`)
	assert.Contains(t, out, "Saturday")
	assert.Contains(t, out, "10:00:00")
	assert.Contains(t, out, "No auxiliary schedules")
}

func TestSchedule_MissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "schedule", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigPath_MissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execute(t, "schedule")
	require.NoError(t, err)
	assert.Contains(t, out, "08:47:00")

	out, err = execute(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok (output: log)")
}

func TestDefaultConfigPath_MalformedFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "schedule: [unterminated\n")
	chdir(t, dir)

	for _, args := range [][]string{{}, {"schedule"}, {"check"}} {
		_, err := execute(t, args...)
		assert.ErrorContains(t, err, "load configuration", "%v", args)
	}
}

func TestSetupLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	require.NoError(t, setupLogging(config.LogConfig{Level: "Debug", UseJSON: true}))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	require.NoError(t, setupLogging(config.LogConfig{Level: "warn"}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	assert.Error(t, setupLogging(config.LogConfig{Level: "loud"}))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	var buf bytes.Buffer
	logger := zerolog.New(logWriter(config.LogConfig{Colors: false}, &buf))
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "{")
}
