package storage

import (
	"errors"
	"testing"
)

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("unexpected value: %q", got)
	}
	ok, err := db.Has([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}

	// Stored values must not alias the caller's slice.
	buf := []byte("vvv")
	if err := db.Put([]byte("k2"), buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	buf[0] = 'x'
	got, err = db.Get([]byte("k2"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "vvv" {
		t.Fatalf("value aliased caller buffer: %q", got)
	}
	db.Close()
}
