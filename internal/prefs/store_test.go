package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T, dir string, version int) *Store {
	t.Helper()
	s, err := New(Options{Dir: dir, Namespace: "studiomatch:", Version: version},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, 1)

	Set(s, "tab", "teams", 0)
	if got := Get(s, "tab", "people"); got != "teams" {
		t.Errorf("Get = %q, want %q", got, "teams")
	}

	// 別インスタンスからもファイル経由で読める
	other := newTestStore(t, dir, 1)
	if got := Get(other, "tab", "people"); got != "teams" {
		t.Errorf("Get from other store = %q, want %q", got, "teams")
	}

	b, err := os.ReadFile(s.path("tab"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	for _, field := range []string{"value", "timestamp", "version"} {
		if _, ok := env[field]; !ok {
			t.Errorf("envelope missing %q: %s", field, b)
		}
	}
	if _, ok := env["expiresAt"]; ok {
		t.Errorf("envelope without ttl should omit expiresAt: %s", b)
	}
}

func TestStore_MissingKeyReturnsDefault(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	if got := Get(s, "missing", 42); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
}

func TestStore_VersionMismatchEvicts(t *testing.T) {
	dir := t.TempDir()
	Set(newTestStore(t, dir, 1), "tab", "teams", 0)

	s := newTestStore(t, dir, 2)
	if got := Get(s, "tab", "people"); got != "people" {
		t.Errorf("Get = %q, want default", got)
	}
	if _, err := os.Stat(s.path("tab")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale file should be evicted, stat err = %v", err)
	}
}

func TestStore_ExpiredValueEvicts(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	Set(s, "tab", "teams", time.Minute)
	if got := Get(s, "tab", "people"); got != "teams" {
		t.Fatalf("Get before expiry = %q, want %q", got, "teams")
	}

	now = now.Add(2 * time.Minute)
	if got := Get(s, "tab", "people"); got != "people" {
		t.Errorf("Get after expiry = %q, want default", got)
	}
	if _, err := os.Stat(s.path("tab")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expired file should be evicted, stat err = %v", err)
	}
}

func TestStore_CorruptFileReturnsDefault(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	if err := os.WriteFile(s.path("tab"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Get(s, "tab", "people"); got != "people" {
		t.Errorf("Get = %q, want default", got)
	}
}

func TestStore_InvalidKey(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	for _, key := range []string{"", "../escape", "a/b", `a\b`} {
		Set(s, key, "x", 0)
		if _, ok := s.Lookup(key); ok {
			t.Errorf("Lookup(%q) should fail", key)
		}
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	Set(s, "tab", "teams", 0)
	s.Remove("tab")
	if _, ok := s.Lookup("tab"); ok {
		t.Error("Lookup after Remove should fail")
	}
	s.Remove("tab")
}

func TestStore_UserHelpers(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)

	if diff := cmp.Diff(Filters{Programs: []string{}, Studios: []string{}, Skills: []string{}}, s.UserFilters("u1")); diff != "" {
		t.Errorf("default filters mismatch (-want +got):\n%s", diff)
	}
	if got := s.ActiveTab("u1"); got != TabPeople {
		t.Errorf("ActiveTab = %q, want %q", got, TabPeople)
	}

	f := Filters{Programs: []string{"mdes"}, Studios: []string{"games"}, Skills: []string{"unity"}}
	s.SetUserFilters("u1", f)
	s.SetActiveTab("u1", TabTeams)

	if diff := cmp.Diff(f, s.UserFilters("u1")); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}
	if got := s.ActiveTab("u1"); got != TabTeams {
		t.Errorf("ActiveTab = %q, want %q", got, TabTeams)
	}
	if got := s.ActiveTab("u2"); got != TabPeople {
		t.Errorf("ActiveTab for other user = %q, want %q", got, TabPeople)
	}
}

func TestStore_CrossInstanceSync(t *testing.T) {
	dir := t.TempDir()
	writer := newTestStore(t, dir, 1)
	reader := newTestStore(t, dir, 1)

	if err := reader.Watch(context.Background()); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	defer reader.Close()

	got := make(chan json.RawMessage, 8)
	unsubscribe := reader.Subscribe("tab", func(v json.RawMessage) { got <- v })
	defer unsubscribe()

	Set(writer, "tab", "teams", 0)

	select {
	case v := <-got:
		if string(v) != `"teams"` {
			t.Errorf("notified value = %s, want \"teams\"", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
	if v := Get(reader, "tab", "people"); v != "teams" {
		t.Errorf("reader Get = %q, want %q", v, "teams")
	}

	writer.Remove("tab")
	deadline := time.After(3 * time.Second)
	for {
		select {
		case v := <-got:
			if v == nil {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for removal notification")
		}
	}
}

func TestStore_OwnWritesDoNotNotify(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	if err := s.Watch(context.Background()); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	defer s.Close()

	notified := make(chan struct{}, 1)
	defer s.Subscribe("tab", func(json.RawMessage) {
		select {
		case notified <- struct{}{}:
		default:
		}
	})()

	Set(s, "tab", "teams", 0)
	select {
	case <-notified:
		t.Error("own write should not notify")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStore_CloseWithoutWatch(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 1)
	if err := s.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
