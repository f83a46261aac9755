package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "sttd.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sttd.db")

	l, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	if l.Ephemeral() {
		t.Error("expected persistent ledger")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file: %v", err)
	}
}

func TestLedger_RecordAndStats(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	entries := []Entry{
		{Language: "ru", File: "ru_a.mp3", Output: "/out/ru_a.txt", Status: StatusTranscribed, Text: "привет", Bytes: 8000, Elapsed: 1500 * time.Millisecond},
		{Language: "ru", File: "ru_b.mp3", Status: StatusFailed, Reason: "conversion"},
		{Language: "en", File: "en_c.ogg", Output: "/out/en_c.txt", Status: StatusTranscribed, Text: "hello"},
		{Language: "ru", File: "ru_d.mp3", Output: "/out/ru_d.txt", Status: StatusTranscribed, Text: "мир", Dictionary: true},
	}
	for _, e := range entries {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	stats, err := l.Stats(ctx, "ru")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Transcribed != 2 || stats.Failed != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.Last == nil {
		t.Fatal("expected last entry")
	}
	if stats.Last.File != "ru_d.mp3" || !stats.Last.Dictionary || stats.Last.Text != "мир" {
		t.Errorf("unexpected last entry: %+v", *stats.Last)
	}
	if stats.Last.CreatedAt.IsZero() {
		t.Error("expected created_at to round-trip")
	}
}

func TestLedger_RecentNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, name := range []string{"ru_1.mp3", "ru_2.mp3", "ru_3.mp3"} {
		if err := l.Record(ctx, Entry{Language: "ru", File: name, Status: StatusTranscribed, Elapsed: 250 * time.Millisecond}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := l.Recent(ctx, "ru", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].File != "ru_3.mp3" || recent[1].File != "ru_2.mp3" {
		t.Errorf("unexpected order: %s, %s", recent[0].File, recent[1].File)
	}
	if recent[0].Elapsed != 250*time.Millisecond {
		t.Errorf("expected elapsed to round-trip, got %v", recent[0].Elapsed)
	}
}

func TestLedger_StatsEmpty(t *testing.T) {
	stats, err := openTestLedger(t).Stats(context.Background(), "de")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Transcribed != 0 || stats.Failed != 0 || stats.Last != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestLedger_RejectsUnknownStatus(t *testing.T) {
	if err := openTestLedger(t).Record(context.Background(), Entry{Language: "ru", File: "x", Status: "pending"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sttd.db")
	ctx := context.Background()

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Record(ctx, Entry{Language: "en", File: "en_a.ogg", Status: StatusTranscribed}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	l.Close()

	l, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l.Close()

	stats, err := l.Stats(ctx, "en")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Transcribed != 1 {
		t.Errorf("expected 1 transcribed after reopen, got %d", stats.Transcribed)
	}
}

func TestLedger_Ephemeral(t *testing.T) {
	l, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	if !l.Ephemeral() {
		t.Fatal("expected ephemeral ledger")
	}
	if err := l.Record(context.Background(), Entry{Language: "ru", File: "x", Status: StatusTranscribed}); err != nil {
		t.Errorf("Record on ephemeral ledger failed: %v", err)
	}
	stats, err := l.Stats(context.Background(), "ru")
	if err != nil || stats.Transcribed != 0 {
		t.Errorf("expected empty stats, got %+v, %v", stats, err)
	}
}
