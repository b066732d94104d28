package sysinfo

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"testing"
)

func TestResolverCachesLookups(t *testing.T) {
	t.Cleanup(func() { lookupUser = user.LookupId })

	calls := 0
	lookupUser = func(uid string) (*user.User, error) {
		calls++
		if uid == "1000" {
			return &user.User{Uid: uid, Username: "alice"}, nil
		}
		return nil, errors.New("unknown user")
	}

	r := NewResolver()
	if name := r.Name(1000); name != "alice" {
		t.Fatalf("expected alice, got %q", name)
	}
	if name := r.Name(1000); name != "alice" || calls != 1 {
		t.Fatalf("expected cached alice after 1 lookup, got %q with %d lookups", name, calls)
	}

	if name := r.Name(4242); name != "uid-4242" {
		t.Fatalf("expected fallback name, got %q", name)
	}
	// Fallbacks are not cached: the account may appear later.
	if name := r.Name(4242); name != "uid-4242" || calls != 3 {
		t.Fatalf("fallback should retry, got %q with %d lookups", name, calls)
	}
}

func TestSnapshotSettings(t *testing.T) {
	t.Cleanup(func() {
		settingsReadFile = os.ReadFile
		settingsGlob = filepath.Glob
	})
	settingsGlob = func(pattern string) ([]string, error) {
		return []string{"/sys/class/backlight/panel0"}, nil
	}
	settingsReadFile = func(path string) ([]byte, error) {
		switch path {
		case "/sys/class/backlight/panel0/brightness":
			return []byte("180\n"), nil
		case "/sys/module/kernel/parameters/consoleblank":
			return []byte("600\n"), nil
		}
		return nil, errors.New("missing")
	}
	t.Setenv("HTTP_PROXY", "http://proxy:3128")

	s := SnapshotSettings()
	if !s.HasBrightness || s.Brightness != 180 {
		t.Fatalf("brightness not captured: %+v", s)
	}
	if s.ScreenTimeout != 600 {
		t.Fatalf("timeout not captured: %+v", s)
	}
	if s.HTTPProxy != "http://proxy:3128" {
		t.Fatalf("proxy not captured: %+v", s)
	}
}

func TestSnapshotSettingsDegradesQuietly(t *testing.T) {
	t.Cleanup(func() {
		settingsReadFile = os.ReadFile
		settingsGlob = filepath.Glob
	})
	settingsGlob = func(pattern string) ([]string, error) { return nil, nil }
	settingsReadFile = func(path string) ([]byte, error) { return nil, errors.New("missing") }
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("http_proxy", "")

	s := SnapshotSettings()
	if s.HasBrightness || s.ScreenTimeout != -1 || s.HTTPProxy != "" {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}
