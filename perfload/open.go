// Package perfload reads capture files from disk and summarizes them.
package perfload

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/highwayhash"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a capture file is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect returns the compression whose magic number starts b. Anything
// unrecognized is assumed to be an uncompressed stream.
func Detect(b []byte) Compression {
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(b, lz4Magic):
		return CompressionLZ4
	case bytes.HasPrefix(b, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

var hashKey = [32]byte{}

// File is an open capture file. Reads return the decompressed stream.
type File struct {
	Path        string
	Compression Compression

	file   *os.File
	hasher hash.Hash64
	raw    *bufio.Reader
	r      io.Reader
	close  func() error
}

// Open opens the capture file at path, detecting its compression from the
// leading bytes.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file at %s: %w", path, err)
	}
	hasher, err := highwayhash.New64(hashKey[:])
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to create hasher: %w", err)
	}
	f := &File{
		Path:   path,
		file:   file,
		hasher: hasher,
		raw:    bufio.NewReader(io.TeeReader(file, hasher)),
		close:  func() error { return nil },
	}
	magic, err := f.raw.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f.Compression = Detect(magic)
	if err := f.wrap(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to open %s stream in %s: %w", f.Compression, path, err)
	}
	return f, nil
}

func (f *File) wrap() error {
	switch f.Compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(f.raw)
		if err != nil {
			return err
		}
		f.r, f.close = zr, zr.Close
	case CompressionZstd:
		zr, err := zstd.NewReader(f.raw)
		if err != nil {
			return err
		}
		f.r = zr
		f.close = func() error { zr.Close(); return nil }
	case CompressionLZ4:
		f.r = lz4.NewReader(f.raw)
	default:
		f.r = f.raw
	}
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

// Fingerprint returns the hex-encoded highwayhash of the file's raw bytes.
// Bytes not yet read are consumed first, so the file cannot be read after
// calling it.
func (f *File) Fingerprint() (string, error) {
	if _, err := io.Copy(io.Discard, f.raw); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", f.Path, err)
	}
	return hex.EncodeToString(f.hasher.Sum(nil)), nil
}

// Close releases the decompressor and the file.
func (f *File) Close() error {
	return errors.Join(f.close(), f.file.Close())
}
