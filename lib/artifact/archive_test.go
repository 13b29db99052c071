// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"os"
	"strings"
	"testing"
)

func TestArchive_RoundTrip(t *testing.T) {
	t.Parallel()

	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchive() error: %v", err)
	}

	content := strings.Repeat("<div>row</div>\n", 500)
	reference, err := archive.Archive("get_dom", content)
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}

	toolName, digest, found := strings.Cut(reference, ":")
	if !found || toolName != "get_dom" {
		t.Fatalf("reference = %q, want get_dom:<digest>", reference)
	}

	loaded, err := archive.Load(digest)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded != content {
		t.Errorf("Load() returned %d bytes, want original %d bytes intact", len(loaded), len(content))
	}
}

func TestArchive_Deduplicates(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	archive, err := NewArchive(directory)
	if err != nil {
		t.Fatalf("NewArchive() error: %v", err)
	}

	first, err := archive.Archive("get_dom", "<html>same</html>")
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	second, err := archive.Archive("get_dom", "<html>same</html>")
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if first != second {
		t.Errorf("references differ for identical payloads: %q vs %q", first, second)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("archive holds %d files, want 1 (deduplicated)", len(entries))
	}
}

func TestArchive_CompressesRepetitivePayloads(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	archive, err := NewArchive(directory)
	if err != nil {
		t.Fatalf("NewArchive() error: %v", err)
	}

	content := strings.Repeat("<tr><td>cell</td></tr>", 2000)
	if _, err := archive.Archive("get_dom", content); err != nil {
		t.Fatalf("Archive() error: %v", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir() = %v entries, error %v", len(entries), err)
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Size() >= int64(len(content)) {
		t.Errorf("stored size %d >= raw size %d, want compression", info.Size(), len(content))
	}
}
