package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
	}
}

func snapshotWithPages(status session.Status, n int) session.Snapshot {
	snap := session.Snapshot{
		Status:  status,
		Profile: story.Profile{Name: "Mia", Age: 6, Theme: "space", Format: story.FormatDigital},
	}
	for i := 1; i <= n; i++ {
		snap.Pages = append(snap.Pages, story.Page{
			PageNumber: i,
			Title:      "Scene",
			Lines:      []story.ScriptLine{{Speaker: story.SpeakerNarrator, Text: "Hello"}},
			Choices:    []string{"A", "B"},
			Sidekick:   &story.Sidekick{Name: "Rusty", Emoji: "🤖"},
		})
	}
	if n > 0 {
		snap.CurrentPageIndex = n - 1
	}
	return snap
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("load without a snapshot", func(t *testing.T) {
				if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
			})

			t.Run("save and load keeps history", func(t *testing.T) {
				if err := s.Save(ctx, snapshotWithPages(session.StatusReading, 2)); err != nil {
					t.Fatalf("save: %v", err)
				}
				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				if len(got.Pages) != 2 || got.Pages[1].PageNumber != 2 {
					t.Fatalf("unexpected pages %+v", got.Pages)
				}
				if got.Pages[0].Sidekick == nil || got.Pages[0].Sidekick.Name != "Rusty" {
					t.Fatal("sidekick lost in round trip")
				}
				if got.Profile.Name != "Mia" {
					t.Fatalf("unexpected profile %+v", got.Profile)
				}
			})

			t.Run("transient status is recovered on load", func(t *testing.T) {
				if err := s.Save(ctx, snapshotWithPages(session.StatusLoading, 1)); err != nil {
					t.Fatalf("save: %v", err)
				}
				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				if got.Status != session.StatusReading {
					t.Fatalf("expected reading, got %s", got.Status)
				}

				if err := s.Save(ctx, snapshotWithPages(session.StatusError, 0)); err != nil {
					t.Fatalf("save: %v", err)
				}
				got, err = s.Load(ctx)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				if got.Status != session.StatusSetup {
					t.Fatalf("expected setup, got %s", got.Status)
				}
			})

			t.Run("clear erases the snapshot", func(t *testing.T) {
				if err := s.Clear(ctx); err != nil {
					t.Fatalf("clear: %v", err)
				}
				if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound after clear, got %v", err)
				}
				if err := s.Clear(ctx); err != nil {
					t.Fatalf("second clear: %v", err)
				}
			})
		})
	}
}

func TestResetThenHydrateYieldsInitialSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	m := session.NewMachine(s)

	_, _ = m.Dispatch(ctx, session.SetProfile{Profile: story.Profile{Name: "Mia"}})
	_, _ = m.Dispatch(ctx, session.StartLoading{})
	_, _ = m.Dispatch(ctx, session.AddPage{Page: story.Page{PageNumber: 1}})
	if _, err := m.Dispatch(ctx, session.Reset{}); err != nil {
		t.Fatal(err)
	}

	fresh := session.NewMachine(s)
	snap, err := s.Load(ctx)
	if err == nil {
		_, _ = fresh.Dispatch(ctx, session.Hydrate{Snapshot: snap})
	} else if !errors.Is(err, ErrNotFound) {
		t.Fatalf("load: %v", err)
	}

	got := fresh.State()
	if got.Status != session.StatusSetup || len(got.Pages) != 0 {
		t.Fatalf("expected initial setup session, got %+v", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: TypeMemory}, false},
		{"file", Config{Type: TypeFile, Path: t.TempDir()}, false},
		{"sqlite", Config{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "s.db")}, false},
		{"unknown", Config{Type: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				_ = s.Close()
			}
		})
	}
}
