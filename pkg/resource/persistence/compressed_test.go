package persistence

import (
	"bytes"
	"io"
	"testing"
)

type memSnapshotter struct {
	data []byte
}

func (m *memSnapshotter) Load() (io.ReadCloser, error) {
	if m.data == nil {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m *memSnapshotter) Save(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

func TestCompressed_RoundTrips(t *testing.T) {
	inner := &memSnapshotter{}
	c := NewCompressed(inner)

	want := []byte("resource manager snapshot contents")
	if err := c.Save(bytes.NewReader(want)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if bytes.Equal(inner.data, want) {
		t.Fatalf("expected inner snapshot to be compressed, got plaintext")
	}

	r, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading loaded snapshot: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, want)
	}
}

func TestCompressed_LoadToleratesUncompressedSnapshot(t *testing.T) {
	want := []byte("legacy plain snapshot")
	inner := &memSnapshotter{data: want}
	c := NewCompressed(inner)

	r, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading loaded snapshot: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected uncompressed snapshot to pass through unchanged, got %q, want %q", got, want)
	}
}

func TestCompressed_LoadNilWhenNoSnapshot(t *testing.T) {
	c := NewCompressed(&memSnapshotter{})
	r, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil reader when no snapshot exists")
	}
}
