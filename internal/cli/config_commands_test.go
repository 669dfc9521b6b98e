package cli

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvcleanup/rv-cleanup/internal/config"
)

func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "config", cmd.Use)

	found := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		found[sub.Name()] = true
	}
	for _, want := range []string{"init", "show", "set", "test", "path"} {
		assert.True(t, found[want], "subcommand %s missing", want)
	}
	assert.NotNil(t, newConfigInitCmd().Flags().Lookup("force"))
}

func TestConfigInitInteractive(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.Remove(env.cfgPath))

	answers := strings.Join([]string{
		"http://merge.internal:9000",
		"12",
		"",
		"y",
		"basic",
		"proxy.corp",
		"3128",
		"alice",
		"s3cret",
	}, "\n") + "\n"

	out, err := env.run(t, answers, "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Configuration saved")

	cfg, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "http://merge.internal:9000", cfg.BaseURL)
	assert.Equal(t, 12, cfg.EstimateSeconds)
	assert.Equal(t, 100, cfg.PageLimit)
	assert.Equal(t, "basic", cfg.ProxyMode)
	assert.Equal(t, "proxy.corp", cfg.ProxyHost)
	assert.Equal(t, 3128, cfg.ProxyPort)

	out, err = env.run(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestPromptIntRetries(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("zero\n-3\n7\n"))
	assert.Equal(t, 7, promptInt(r, &out, "Rows", 100))
	assert.Contains(t, out.String(), "enter a positive number")

	r = bufio.NewReader(strings.NewReader(""))
	assert.Equal(t, 100, promptInt(r, &out, "Rows", 100))
}

func TestConfigSetAndShow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "config", "set", "browser.page_limit", "250")
	require.NoError(t, err, out)
	assert.Contains(t, out, "browser.page_limit = 250")

	_, err = env.run(t, "", "config", "set", "browser.page_limit", "5000")
	assert.Error(t, err)

	_, err = env.run(t, "", "config", "set", "nope.key", "1")
	assert.ErrorIs(t, err, config.ErrUnknownKey)

	_, err = env.run(t, "", "config", "set", "proxy.password", "hunter2")
	require.NoError(t, err)

	out, err = env.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "250")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, env.cfgPath)

	cfg, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.PageLimit)
}

func TestConfigTestCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "config", "test")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Connection SUCCESSFUL")
	assert.Contains(t, out, "Email Cleanup API is live!")

	env.url = "http://127.0.0.1:1"
	out, err = env.run(t, "", "config", "test")
	assert.ErrorIs(t, err, errConnectionTest)
	assert.Contains(t, out, "Connection FAILED")
}

func TestConfigPathCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, env.cfgPath)
	assert.Contains(t, out, "File exists")

	env.cfgPath = filepath.Join(env.dir, "missing.ini")
	out, err = env.run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist")
}
