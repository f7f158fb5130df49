package perfload

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/DataExMachina-dev/perfview-go/perfdecode"
	"github.com/DataExMachina-dev/perfview-go/perfrecord"
	"github.com/DataExMachina-dev/perfview-go/perfstats"
)

const ENV_CHUNK_SIZE = "PERFVIEW_CHUNK_SIZE"

// Options controls how a capture file is loaded.
type Options struct {
	// ChunkSize is the size of the reads fed to the decoder. Zero selects
	// PERFVIEW_CHUNK_SIZE, or perfdecode.DefaultChunkSize.
	ChunkSize int
	// TopStacks is passed to perfstats.NewAggregator.
	TopStacks int
	Decode    []perfdecode.Option
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	if v := os.Getenv(ENV_CHUNK_SIZE); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			return n
		}
		log.Warnf("Ignoring invalid %s=%q", ENV_CHUNK_SIZE, v)
	}
	return perfdecode.DefaultChunkSize
}

// Result is the outcome of loading one capture file.
type Result struct {
	Path        string            `json:"path"`
	Fingerprint string            `json:"fingerprint"`
	Compression string            `json:"compression"`
	Bytes       int64             `json:"bytes"`
	Summary     perfstats.Summary `json:"summary"`
}

// Records decodes f, chunk by chunk. ctx is checked before every read; once
// it is done no further chunk is read and the sequence ends with its error.
// *n, if n is not nil, counts the decompressed bytes read.
func Records(ctx context.Context, f *File, opts Options, n *int64) iter.Seq2[perfrecord.Record, error] {
	chunks := perfdecode.Chunks(f, opts.chunkSize())
	return perfdecode.Records(func(yield func([]byte, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		for chunk, err := range chunks {
			if n != nil {
				*n += int64(len(chunk))
			}
			if !yield(chunk, err) {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
		}
	}, opts.Decode...)
}

// Load decodes the capture file at path and summarizes it.
func Load(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	res := &Result{Path: path, Compression: f.Compression.String()}
	agg := perfstats.NewAggregator(opts.TopStacks)
	for rec, err := range Records(ctx, f, opts, &res.Bytes) {
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		agg.Add(rec)
	}
	if res.Fingerprint, err = f.Fingerprint(); err != nil {
		return nil, err
	}
	res.Summary = agg.Summary()
	log.Debugf("Loaded %s (%s, %d bytes): %d timeslices, %d warnings",
		path, res.Compression, res.Bytes, res.Summary.Timeslices, res.Summary.Warnings)
	return res, nil
}
