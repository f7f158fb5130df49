// perfview-decode decodes capture files and prints what they contain.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/DataExMachina-dev/perfview-go/perfload"
	"github.com/DataExMachina-dev/perfview-go/perfrecord"
	"github.com/DataExMachina-dev/perfview-go/perfstats"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := mainWithError(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func mainWithError(ctx context.Context, argv []string, out io.Writer) error {
	args, err := parseArgs(argv)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse arguments: %v", err)
	}
	if err = args.SanityCheck(); err != nil {
		return err
	}
	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}

	opts := perfload.Options{
		ChunkSize: args.chunkSize,
		TopStacks: args.top,
		Decode:    args.decodeOptions(),
	}
	if args.format == formatRecords {
		return writeRecords(ctx, out, args.files, opts)
	}

	results, err := loadAll(ctx, args.files, opts, args.parallel)
	if err != nil {
		return err
	}
	if args.format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		writeSummary(out, res)
	}
	return nil
}

func loadAll(ctx context.Context, files []string, opts perfload.Options, parallel int) ([]*perfload.Result, error) {
	loader, err := perfload.NewLoader(uint32(len(files)), opts)
	if err != nil {
		return nil, err
	}
	results := make([]*perfload.Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range files {
		g.Go(func() error {
			log.Infof("Decoding %s", path)
			res, err := loader.Load(ctx, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type recordLine struct {
	File   string            `json:"file"`
	Kind   string            `json:"kind"`
	Record perfrecord.Record `json:"record"`
}

func writeRecords(ctx context.Context, out io.Writer, files []string, opts perfload.Options) error {
	enc := json.NewEncoder(out)
	for _, path := range files {
		f, err := perfload.Open(path)
		if err != nil {
			return err
		}
		err = func() error {
			defer func() { _ = f.Close() }()
			for rec, err := range perfload.Records(ctx, f, opts, nil) {
				if err != nil {
					return fmt.Errorf("failed to decode %s: %w", path, err)
				}
				line := recordLine{File: path, Kind: rec.Kind().String(), Record: rec}
				if err := enc.Encode(line); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(w io.Writer, res *perfload.Result) {
	s := res.Summary
	fmt.Fprintf(w, "%s (%s, %d bytes, fingerprint %s)\n", res.Path, res.Compression, res.Bytes, res.Fingerprint)
	fmt.Fprintf(w, "  program:     %s %s\n", s.Program, s.Version)
	if len(s.Presets) > 0 {
		fmt.Fprintf(w, "  presets:     %s\n", strings.Join(s.Presets, ", "))
	}
	fmt.Fprintf(w, "  timeslices:  %d over [%d, %d], %d ticks, %d threads\n",
		s.Timeslices, s.FirstTime, s.LastTime, s.TotalTicks, s.Threads)
	for _, name := range sortedEvents(s) {
		fmt.Fprintf(w, "  event:       %s = %d\n", name, s.Events[name])
	}
	fmt.Fprintf(w, "  warnings:    %d (throttle %d, unthrottle %d, lost samples %d)\n",
		s.Warnings, s.Throttles, s.Unthrottles, s.LostSamples)
	fmt.Fprintf(w, "  stacks:      %d distinct\n", s.DistinctStacks)
	for _, st := range s.TopStacks {
		fmt.Fprintf(w, "    %6d  %s\n", st.Samples, strings.Join(st.Frames, " <- "))
	}
}

func sortedEvents(s perfstats.Summary) []string {
	names := make([]string, 0, len(s.Events))
	for name := range s.Events {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
