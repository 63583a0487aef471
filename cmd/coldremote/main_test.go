package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/require"

	"github.com/backkem/coldremote/pkg/config"
	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/reading"
)

func TestReceiverConfig(t *testing.T) {
	cfg, err := config.Load([]byte(`
[Link]
KeyHex = "0102030405060708090a0b0c0d0e0f10"
LengthMode = "trailing-zero"
ByteOrder = "big"

[Radio]
Listen = "127.0.0.1:7000"

[Discovery]
Enable = true

[Storage]
Path = "/tmp/coldremote.db"

[Alarm]
MinTemperature = 2.0
MaxTemperature = 8.0
WatchdogTimeoutSec = 12
`))
	require.NoError(t, err)

	rcfg, err := receiverConfig(cfg, logging.NewDefaultLoggerFactory())
	require.NoError(t, err)
	require.Len(t, rcfg.Key, 16)
	require.Equal(t, fragment.LengthTrailingZero, rcfg.LengthMode)
	require.Equal(t, binary.ByteOrder(binary.BigEndian), rcfg.ByteOrder)
	require.Equal(t, "127.0.0.1:7000", rcfg.ListenAddr)
	require.Equal(t, 64, rcfg.QueueSize)
	require.Equal(t, ":8080", rcfg.StatusAddr)
	require.True(t, rcfg.Advertise)
	require.Equal(t, "coldremote", rcfg.Instance)
	require.Equal(t, "/tmp/coldremote.db", rcfg.StorePath)
	require.Equal(t, reading.Limits{Min: 2, Max: 8}, rcfg.Limits)
	require.Equal(t, 12*time.Second, rcfg.WatchdogTimeout)
	require.NotNil(t, rcfg.LoggerFactory)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd.Flags().Lookup("config"))
	require.Equal(t, "c", cmd.Flags().Lookup("config").Shorthand)
	require.NotNil(t, cmd.Flags().Lookup("log-level"))
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := run(t.Context(), options{ConfigFile: filepath.Join(t.TempDir(), "absent.toml")})
	require.Error(t, err)
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coldremote.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Link]\nKeyHex = \"0102030405060708090a0b0c0d0e0f10\"\n"), 0o600))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"-c", path, "--log-level", "loud"})
	require.Error(t, cmd.Execute())
}
