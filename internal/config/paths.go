package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// HomeEnv overrides the base directory.
const HomeEnv = "JIBBY_HOME"

// Paths locates the files Jibby keeps on disk.
type Paths struct {
	Base   string // ~/.jibby
	Config string // ~/.jibby/config.yaml
	Env    string // ~/.jibby/.env
	Data   string // ~/.jibby/data
}

// ResolvePaths returns the standard layout under $JIBBY_HOME, or ~/.jibby.
func ResolvePaths() (Paths, error) {
	base := os.Getenv(HomeEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".jibby")
	}
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// Database returns the SQLite file for s: its configured path with a leading
// "~" expanded, or jibby.db in the data directory.
func (p Paths) Database(s StoreConfig) string {
	if s.Path == "" {
		return filepath.Join(p.Data, "jibby.db")
	}
	if s.Path == "~" || strings.HasPrefix(s.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(s.Path[1:], "/"))
		}
	}
	return s.Path
}

// PrepareDatabase resolves the database path and creates its directory.
func (p Paths) PrepareDatabase(s StoreConfig) (string, error) {
	if err := os.MkdirAll(p.Base, 0o700); err != nil {
		return "", err
	}
	path := p.Database(s)
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// secretFields are leaf names whose values are credentials.
var secretFields = []string{
	"token", "jwtSecret", "authToken", "webhookSecret", "appSecret",
	"verifyToken", "password", "apiKey", "apiSecret", "accessToken",
	"accessSecret", "secret",
}

// Key addresses a value in the raw config document, e.g.
// whatsapp.authToken or social.platforms.facebook.pageId.
type Key []string

// ParseKey splits a dotted key and checks that it starts at a known section.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(raw, ".")
	if slices.Contains(parts, "") {
		return nil, &ConfigError{Message: "config key contains empty segment: " + raw}
	}
	if !slices.Contains(sections, parts[0]) {
		return nil, &ConfigError{Message: "unknown config section: " + parts[0]}
	}
	return Key(parts), nil
}

func (k Key) String() string { return strings.Join(k, ".") }

// Section is the top-level section the key belongs to.
func (k Key) Section() string { return k[0] }

// Secret reports whether the key names a credential.
func (k Key) Secret() bool {
	return slices.Contains(secretFields, k[len(k)-1])
}

// Get looks the key up in doc.
func (k Key) Get(doc map[string]any) (any, bool) {
	var cur any = doc
	for _, seg := range k {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at the key, replacing scalars that sit where a map is needed.
func (k Key) Set(doc map[string]any, v any) {
	m := doc
	for _, seg := range k[:len(k)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[k[len(k)-1]] = v
}

// Unset deletes the key from doc and reports whether it was present.
func (k Key) Unset(doc map[string]any) bool {
	m := doc
	for _, seg := range k[:len(k)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			return false
		}
		m = next
	}
	last := k[len(k)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
