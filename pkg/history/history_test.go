package history

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEmptyHistory(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.json"))

	if _, ok, err := s.Get("anything"); err != nil || ok {
		t.Errorf("Get on empty history: ok=%v err=%v", ok, err)
	}
	if s.IsDirty() {
		t.Error("empty history should not be dirty")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("saving an unchanged history should not create the file")
	}
}

func TestPutSaveReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "history.json")
	dest := filepath.Join(dir, "file.bin")
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s := Open(path)
	if err := s.Put(dest, Entry{URI: "https://example.com/file.bin", LastModified: modified, ETag: `"v1"`, Size: 42}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !s.IsDirty() {
		t.Error("expected dirty after Put")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.IsDirty() {
		t.Error("expected clean after Save")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}

	other := Open(path)
	e, ok, err := other.Get(dest)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if e.URI != "https://example.com/file.bin" || e.ETag != `"v1"` || e.Size != 42 || !e.LastModified.Equal(modified) {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestRelativeDestinations(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.json"))
	if err := s.Put("a/../b.txt", Entry{URI: "x"}); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs("b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(abs); !ok {
		t.Error("relative and absolute paths should share an entry")
	}
}

func TestReloadDiscardsChanges(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.json"))
	if err := s.Put("kept", Entry{URI: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("dropped", Entry{URI: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].URI != "1" {
		t.Errorf("records after reload = %+v", records)
	}
	if s.IsDirty() {
		t.Error("expected clean after Reload")
	}
}

func TestPruneAndRemove(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, nil, 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing")

	s := Open(filepath.Join(dir, "history.json"))
	for _, dest := range []string{present, missing} {
		if err := s.Put(dest, Entry{URI: dest}); err != nil {
			t.Fatal(err)
		}
	}

	gone, err := s.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if len(gone) != 1 || gone[0] != missing {
		t.Errorf("Prune() = %v", gone)
	}

	if err := s.Remove(present); err != nil {
		t.Fatal(err)
	}
	if records, _ := s.List(); len(records) != 0 {
		t.Errorf("records = %+v", records)
	}
}

func TestListSorted(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.json"))
	for _, dest := range []string{"/c", "/a", "/b"} {
		if err := s.Put(dest, Entry{}); err != nil {
			t.Fatal(err)
		}
	}
	records, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"/a", "/b", "/c"} {
		if records[i].Dest != want {
			t.Errorf("records[%d] = %s, want %s", i, records[i].Dest, want)
		}
	}
}

func TestCorruptHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	s := Open(path)
	if _, _, err := s.Get("x"); err == nil {
		t.Error("expected a parse error")
	}
	if err := s.Put("x", Entry{}); err == nil {
		t.Error("Put should fail while the history cannot be read")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.json"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dest := filepath.Join("/tmp", "f", string(rune('a'+i)))
			if err := s.Put(dest, Entry{Size: int64(i)}); err != nil {
				t.Error(err)
			}
			if _, _, err := s.Get(dest); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if records, _ := s.List(); len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}
}
