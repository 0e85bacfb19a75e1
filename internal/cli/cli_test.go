package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/store"
	"github.com/soyeahso/jibby/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 3000, parseValue("3000"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "+15551234567", parseValue("+15551234567"))
	assert.Equal(t, "gpt-4", parseValue("gpt-4"))
}

func TestApplyTwilio_FillsOnlyEmpty(t *testing.T) {
	cfg := config.Defaults()
	cfg.SMS.AccountSid = "ACfile"

	applyTwilio(&cfg, &store.Integration{AccountSid: "ACsaved", AuthToken: "tok", PhoneNumber: "+1555"})

	assert.Equal(t, "ACsaved", cfg.WhatsApp.AccountSid)
	assert.Equal(t, "ACfile", cfg.SMS.AccountSid)
	assert.Equal(t, "tok", cfg.SMS.AuthToken)
	assert.Equal(t, "+1555", cfg.Voice.PhoneNumber)
}

func TestBuildChannels_OnlyEnabled(t *testing.T) {
	log := logging.New(io.Discard, "silent")
	cfg := config.Defaults()
	cfg.SMS.Enabled = true
	cfg.Email.Enabled = true

	reg := buildChannels(cfg, hooks.Discard, log)
	assert.ElementsMatch(t, []domain.Channel{domain.ChannelSMS, domain.ChannelEmail}, reg.List())
}

func TestChannelSummary(t *testing.T) {
	cfg := config.Defaults()
	cfg.WhatsApp = config.WhatsAppConfig{Enabled: true, PhoneNumber: "+1555"}

	sum := channelSummary(cfg)
	require.Len(t, sum, 5)
	assert.Equal(t, "enabled +1555", sum[0].state)
	assert.Equal(t, "disabled", sum[1].state)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--env-file", t.TempDir() + "/missing.env"})
	t.Setenv("JIBBY_HOME", t.TempDir())

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), version.Version)
}

func TestVersionCommandJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	t.Setenv("JIBBY_HOME", t.TempDir())
	cmd.SetArgs([]string{"version", "--json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"version": "`+version.Version+`"`)
	assert.Contains(t, out.String(), `"platform"`)
}

func TestRootRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("JIBBY_HOME", t.TempDir())
	cmd := newRootCmd()
	cmd.SetArgs([]string{"version", "--log-level", "loud"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --log-level")
}
