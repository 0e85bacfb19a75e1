package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	t.Run("default home", func(t *testing.T) {
		t.Setenv(HomeEnv, "")
		p, err := ResolvePaths()
		require.NoError(t, err)

		home, _ := os.UserHomeDir()
		assert.Equal(t, filepath.Join(home, ".jibby"), p.Base)
		assert.Equal(t, filepath.Join(home, ".jibby", "config.yaml"), p.Config)
		assert.Equal(t, filepath.Join(home, ".jibby", ".env"), p.Env)
		assert.Equal(t, filepath.Join(home, ".jibby", "data"), p.Data)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv(HomeEnv, "/srv/jibby")
		p, err := ResolvePaths()
		require.NoError(t, err)
		assert.Equal(t, "/srv/jibby/config.yaml", p.Config)
		assert.Equal(t, "/srv/jibby/data", p.Data)
	})
}

func TestPathsDatabase(t *testing.T) {
	p := Paths{Base: "/srv/jibby", Data: "/srv/jibby/data"}
	home, _ := os.UserHomeDir()

	assert.Equal(t, "/srv/jibby/data/jibby.db", p.Database(StoreConfig{}))
	assert.Equal(t, "/var/lib/calls.db", p.Database(StoreConfig{Path: "/var/lib/calls.db"}))
	assert.Equal(t, filepath.Join(home, ".jibby", "x.db"), p.Database(StoreConfig{Path: "~/.jibby/x.db"}))
	assert.Equal(t, ":memory:", p.Database(StoreConfig{Path: ":memory:"}))
}

func TestPrepareDatabase(t *testing.T) {
	dir := t.TempDir()
	p := Paths{Base: dir, Data: filepath.Join(dir, "data")}

	path, err := p.PrepareDatabase(StoreConfig{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "jibby.db"), path)

	info, err := os.Stat(p.Data)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	custom := filepath.Join(dir, "nested", "deeper", "calls.db")
	path, err = p.PrepareDatabase(StoreConfig{Path: custom})
	require.NoError(t, err)
	assert.Equal(t, custom, path)
	assert.DirExists(t, filepath.Dir(custom))

	// idempotent
	_, err = p.PrepareDatabase(StoreConfig{})
	require.NoError(t, err)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{in: "gateway", want: Key{"gateway"}},
		{in: "whatsapp.authToken", want: Key{"whatsapp", "authToken"}},
		{in: "social.platforms.facebook.pageId", want: Key{"social", "platforms", "facebook", "pageId"}},
		{in: "", wantErr: true},
		{in: "sms..phoneNumber", wantErr: true},
		{in: ".sms", wantErr: true},
		{in: "sms.", wantErr: true},
		{in: "fax.enabled", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
			assert.Equal(t, tt.want[0], got.Section())
		})
	}
}

func TestKeySecret(t *testing.T) {
	for _, raw := range []string{"whatsapp.authToken", "ai.apiKey", "email.password", "gateway.auth.jwtSecret", "social.platforms.instagram.accessToken", "webhook.secret"} {
		k, err := ParseKey(raw)
		require.NoError(t, err)
		assert.True(t, k.Secret(), raw)
	}
	for _, raw := range []string{"whatsapp.phoneNumber", "ai.model", "gateway.auth.mode", "email"} {
		k, err := ParseKey(raw)
		require.NoError(t, err)
		assert.False(t, k.Secret(), raw)
	}
}

func TestKeyGet(t *testing.T) {
	doc := map[string]any{
		"voice": map[string]any{
			"language": "en-GB",
			"enabled":  true,
		},
		"agent": "not-a-map",
	}

	v, ok := Key{"voice", "language"}.Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "en-GB", v)

	_, ok = Key{"voice", "greeting"}.Get(doc)
	assert.False(t, ok)
	_, ok = Key{"agent", "name"}.Get(doc)
	assert.False(t, ok)
	_, ok = Key{"sms"}.Get(doc)
	assert.False(t, ok)
}

func TestKeySet(t *testing.T) {
	doc := map[string]any{"agent": "scalar"}

	Key{"sms", "phoneNumber"}.Set(doc, "+15550001111")
	v, ok := Key{"sms", "phoneNumber"}.Get(doc)
	require.True(t, ok)
	assert.Equal(t, "+15550001111", v)

	Key{"agent", "name"}.Set(doc, "front-desk")
	v, ok = Key{"agent", "name"}.Get(doc)
	require.True(t, ok)
	assert.Equal(t, "front-desk", v)

	Key{"sms", "phoneNumber"}.Set(doc, "+15550002222")
	v, _ = Key{"sms", "phoneNumber"}.Get(doc)
	assert.Equal(t, "+15550002222", v)
}

func TestKeyUnset(t *testing.T) {
	doc := map[string]any{
		"email": map[string]any{"imapHost": "imap.example.com", "mailbox": "Support"},
		"ai":    "scalar",
	}

	assert.True(t, Key{"email", "mailbox"}.Unset(doc))
	_, ok := Key{"email", "mailbox"}.Get(doc)
	assert.False(t, ok)
	v, ok := Key{"email", "imapHost"}.Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "imap.example.com", v)

	assert.False(t, Key{"email", "mailbox"}.Unset(doc))
	assert.False(t, Key{"ai", "model"}.Unset(doc))
	assert.False(t, Key{"store", "path"}.Unset(doc))
}
