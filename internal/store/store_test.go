package store

import (
	"path/filepath"
	"testing"
	"time"

	"focusd/internal/aggregate"
	"focusd/internal/session"
)

func sampleSession(id string, start time.Time) session.StudySession {
	stats := aggregate.Stats{Studying: 3, Distracted: 1, Total: 4}
	return session.StudySession{
		ID:          id,
		StartTime:   start,
		EndTime:     start.Add(90 * time.Second),
		DurationSec: 90,
		FocusScore:  stats.FocusScore(),
		Stats:       stats,
	}
}

// storeUnderTest runs the same suite against both backends.
func storeUnderTest(t *testing.T, name string, open func(t *testing.T) Store) {
	t.Run(name, func(t *testing.T) {
		s := open(t)
		defer s.Close()

		base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			if err := s.SaveSession(sampleSession(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
				t.Fatalf("SaveSession(%s) failed: %v", id, err)
			}
		}

		all, err := s.ListSessions(0)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("got %d sessions", len(all))
		}
		// Most recent first.
		if all[0].ID != "c" || all[2].ID != "a" {
			t.Errorf("order = [%s %s %s]", all[0].ID, all[1].ID, all[2].ID)
		}
		if all[0].FocusScore != 75 || all[0].Stats.Studying != 3 {
			t.Errorf("round-trip mismatch: %+v", all[0])
		}
		if all[0].DurationSec != 90 {
			t.Errorf("duration = %d", all[0].DurationSec)
		}

		limited, err := s.ListSessions(2)
		if err != nil {
			t.Fatalf("ListSessions(2) failed: %v", err)
		}
		if len(limited) != 2 || limited[0].ID != "c" {
			t.Errorf("limited = %+v", limited)
		}
	})
}

func TestStores(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T) Store {
		return NewMemory()
	})
	storeUnderTest(t, "sqlite", func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "focusd.db"))
		if err != nil {
			t.Fatalf("OpenSQLite failed: %v", err)
		}
		return s
	})
}

func TestOpenByType(t *testing.T) {
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("Open(memory) failed: %v", err)
	}
	s.Close()

	s, err = Open("", "")
	if err != nil {
		t.Fatalf("Open(default) failed: %v", err)
	}
	s.Close()

	s, err = Open("sqlite", filepath.Join(t.TempDir(), "focusd.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) failed: %v", err)
	}
	s.Close()

	if _, err := Open("redis", ""); err == nil {
		t.Error("unknown store type should fail")
	}
}

func TestSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focusd.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveSession(sampleSession("persisted", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.ListSessions(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "persisted" {
		t.Errorf("got %+v", got)
	}
}
