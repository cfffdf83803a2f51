package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, "/ws", cfg.Path)
	require.False(t, cfg.TLSEnabled)
	require.Equal(t, uint16(10000), cfg.RTC.MinPort)
	require.Equal(t, uint16(20000), cfg.RTC.MaxPort)
	require.Equal(t, uint32(1500000), cfg.RTC.MaxIncomingBitrate)
	require.Equal(t, uint32(1000000), cfg.RTC.InitialOutgoingBitrate)
	require.Equal(t, 10*time.Second, cfg.RTC.HandshakeTimeout)

	codecs := cfg.MediaCodecs()
	require.Len(t, codecs, 2)
	require.Equal(t, domain.KindAudio, codecs[0].Kind)
	require.Equal(t, "audio/opus", codecs[0].MimeType)
	require.Equal(t, uint16(2), codecs[0].Channels)
	require.Equal(t, domain.KindVideo, codecs[1].Kind)
	require.Equal(t, uint32(90000), codecs[1].ClockRate)
	require.Contains(t, codecs[1].Parameters, "x-google-start-bitrate")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("SFU_PORT", "4443")
	t.Setenv("SFU_RTC_ANNOUNCED_IP", "203.0.113.7")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4443, cfg.Port)
	require.Equal(t, ":4443", cfg.Addr())
	ips := cfg.ListenIPs()
	require.Len(t, ips, 1)
	require.Equal(t, "203.0.113.7", ips[0].AnnouncedIP)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{RTC: RTCConfig{
			MinPort: 10000, MaxPort: 20000,
			Codecs: []CodecConfig{{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000}},
		}}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.RTC.MinPort = 30000
	require.ErrorIs(t, cfg.Validate(), ErrPortRange)

	cfg = base()
	cfg.RTC.Codecs = nil
	require.ErrorIs(t, cfg.Validate(), ErrNoCodecs)

	cfg = base()
	cfg.RTC.Codecs[0].Kind = "data"
	require.ErrorIs(t, cfg.Validate(), domain.ErrUnknownKind)
}

func TestCheckTLS(t *testing.T) {
	cfg := Config{TLSEnabled: false, TLSCert: "/nope"}
	require.NoError(t, cfg.CheckTLS())

	cfg.TLSEnabled = true
	cfg.TLSKey = "/nope"
	require.ErrorIs(t, cfg.CheckTLS(), ErrTLSFiles)
}
