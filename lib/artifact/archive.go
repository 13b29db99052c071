// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact stores heavy tool outputs displaced by context
// compaction. Stubbing a DOM dump out of the conversation should not
// destroy evidence: the original payload is zstd-compressed and
// written to a content-addressed file, and the compactor's
// placeholder references it by digest.
//
// Addresses are BLAKE3 digests of the uncompressed payload, so the
// same page state archived twice occupies one file.
package artifact

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// zstd encoder/decoder are reused across calls; both are safe for
// concurrent use with EncodeAll/DecodeAll.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func initZstd() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifact: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// Archive is a directory of compressed, content-addressed payloads.
type Archive struct {
	directory string
}

// NewArchive creates (if needed) the archive directory.
func NewArchive(directory string) (*Archive, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating archive directory %q: %w", directory, err)
	}
	return &Archive{directory: directory}, nil
}

// Digest returns the hex BLAKE3 digest of the payload.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Archive compresses and stores a tool output, returning its
// reference of the form "<tool>:<digest>". Storing the same payload
// twice is a no-op returning the same reference. Implements the
// compactor's Archiver interface.
func (archive *Archive) Archive(toolName string, content string) (string, error) {
	zstdOnce.Do(initZstd)

	payload := []byte(content)
	digest := Digest(payload)
	path := archive.path(digest)

	if _, err := os.Stat(path); err == nil {
		return toolName + ":" + digest, nil
	}

	compressed := zstdEncoder.EncodeAll(payload, nil)

	temp := path + ".tmp"
	if err := os.WriteFile(temp, compressed, 0o644); err != nil {
		return "", fmt.Errorf("artifact: writing %s: %w", digest, err)
	}
	if err := os.Rename(temp, path); err != nil {
		return "", fmt.Errorf("artifact: committing %s: %w", digest, err)
	}

	return toolName + ":" + digest, nil
}

// Load decompresses and returns the payload stored under the given
// hex digest.
func (archive *Archive) Load(digest string) (string, error) {
	zstdOnce.Do(initZstd)

	compressed, err := os.ReadFile(archive.path(digest))
	if err != nil {
		return "", fmt.Errorf("artifact: reading %s: %w", digest, err)
	}
	payload, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("artifact: decompressing %s: %w", digest, err)
	}
	return string(payload), nil
}

func (archive *Archive) path(digest string) string {
	return filepath.Join(archive.directory, digest+".zst")
}
