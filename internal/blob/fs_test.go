package blob

import (
	"errors"
	"testing"
	"time"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newStore(t)

	if err := s.Write("a.png", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	data, err := s.Read("a.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}
}

func TestReadMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Read("nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInvalidNamesRejected(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"", "../escape.png", "a/b.png", ".hidden"} {
		if err := s.Write(name, []byte("x")); err == nil {
			t.Errorf("Write(%q) accepted an unsafe name", name)
		}
		if _, err := s.Read(name); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Read(%q) should fail validation, got %v", name, err)
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newStore(t)

	if err := s.Write("a.png", []byte("x")); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Delete("a.png")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("first delete should report removal")
	}
	// Second delete of the same name is not an error, but nothing was
	// removed either.
	removed, err = s.Delete("a.png")
	if err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if removed {
		t.Fatal("repeat delete should report nothing removed")
	}
	if _, err := s.Read("a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatal("blob still readable after delete")
	}
}

func TestListAndModTime(t *testing.T) {
	s := newStore(t)

	before := time.Now().Add(-time.Minute)
	for _, name := range []string{"a.png", "b.jpg"} {
		if err := s.Write(name, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}

	mtime, err := s.ModTime("a.png")
	if err != nil {
		t.Fatal(err)
	}
	if mtime.Before(before) {
		t.Fatalf("mtime = %v, implausibly old", mtime)
	}

	if _, err := s.ModTime("gone.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
