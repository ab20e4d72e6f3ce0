package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDispatcherRoutesByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Règlement des chantiers.\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	d := NewDispatcher()
	pages, err := d.Extract(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 1 || pages[0].Page != 0 {
		t.Fatalf("pages = %+v", pages)
	}
	if pages[0].Text != "Règlement des chantiers." {
		t.Fatalf("text = %q", pages[0].Text)
	}
}

func TestDispatcherRoutesByMimeType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	if err := os.WriteFile(path, []byte("contenu"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	d := NewDispatcher()
	pages, err := d.Extract(context.Background(), path, "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "contenu" {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestDispatcherRejectsUnknownFormat(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Extract(context.Background(), "archive.zip", "application/zip")
	if err == nil || !strings.Contains(err.Error(), "unsupported document format") {
		t.Fatalf("err = %v", err)
	}
}

func TestPlaintextRejectsBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.txt")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := (Plaintext{}).Extract(context.Background(), path); err == nil {
		t.Fatal("expected invalid UTF-8 error")
	}
}

func TestPlaintextEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pages, err := (Plaintext{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if pages != nil {
		t.Fatalf("pages = %+v, want nil", pages)
	}
}
