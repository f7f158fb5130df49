package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"

	"github.com/DataExMachina-dev/perfview-go/perfdecode"
	"github.com/DataExMachina-dev/perfview-go/perfstats"
)

const (
	formatSummary = "summary"
	formatJSON    = "json"
	formatRecords = "records"
)

// Help strings for command line arguments
var (
	chunkSizeHelp    = "Size of the reads fed to the decoder, in bytes (0 for the default)."
	maxFrameSizeHelp = "Largest frame payload accepted, in bytes (0 for the default)."
	lenientHelp      = "Decode a final frame that is shorter than its declared length."
	formatHelp       = "Output format: summary, json or records."
	parallelHelp     = "Number of files decoded concurrently."
	topHelp          = "Number of hottest stacks listed per file (negative for none)."
	verboseHelp      = "Enable debug logging."
	configHelp       = "Optional file of flag values, one per line."
)

type arguments struct {
	chunkSize    int
	maxFrameSize uint64
	lenientFlush bool
	format       string
	parallel     int
	top          int
	verbose      bool
	files        []string

	fs *flag.FlagSet
}

func (args *arguments) SanityCheck() error {
	if len(args.files) == 0 {
		return errors.New("no capture file specified")
	}
	switch args.format {
	case formatSummary, formatJSON, formatRecords:
	default:
		return fmt.Errorf("unknown output format %q", args.format)
	}
	if args.chunkSize < 0 {
		return errors.New("chunk size must not be negative")
	}
	if args.parallel < 1 {
		return errors.New("parallelism must be at least 1")
	}
	return nil
}

func (args *arguments) decodeOptions() []perfdecode.Option {
	opts := []perfdecode.Option{perfdecode.WithMaxFrameSize(args.maxFrameSize)}
	if args.lenientFlush {
		opts = append(opts, perfdecode.WithLenientFlush())
	}
	return opts
}

func parseArgs(argv []string) (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("perfview-decode", flag.ContinueOnError)

	fs.IntVar(&args.chunkSize, "chunk-size", 0, chunkSizeHelp)
	fs.Uint64Var(&args.maxFrameSize, "max-frame-size", 0, maxFrameSizeHelp)
	fs.BoolVar(&args.lenientFlush, "lenient-flush", false, lenientHelp)
	fs.StringVar(&args.format, "format", formatSummary, formatHelp)
	fs.IntVar(&args.parallel, "parallel", 4, parallelHelp)
	fs.IntVar(&args.top, "top", perfstats.DefaultTopStacks, topHelp)
	fs.BoolVar(&args.verbose, "v", false, verboseHelp)
	fs.String("config", "", configHelp)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: perfview-decode [flags] FILE...\n")
		fs.PrintDefaults()
	}

	args.fs = fs

	err := ff.Parse(fs, argv,
		ff.WithEnvVarPrefix("PERFVIEW"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	)
	args.files = fs.Args()
	return &args, err
}
