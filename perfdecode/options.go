package perfdecode

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/DataExMachina-dev/perfview-go/internal/framing"
)

// Option configures a Decoder.
type Option interface {
	apply(*config)
}

type config struct {
	maxFrameSize uint64
	lenientFlush bool
	logger       log.FieldLogger
}

const (
	// DefaultMaxFrameSize is the largest payload accepted unless overridden.
	DefaultMaxFrameSize = framing.DefaultMaxFrameSize

	ENV_MAX_FRAME_SIZE = "PERFVIEW_MAX_FRAME_SIZE"
)

func makeDefaultConfig() config {
	cfg := config{
		maxFrameSize: DefaultMaxFrameSize,
		logger:       log.StandardLogger(),
	}
	if v := os.Getenv(ENV_MAX_FRAME_SIZE); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			cfg.logger.Warnf("Ignoring invalid %s=%q", ENV_MAX_FRAME_SIZE, v)
		} else {
			cfg.maxFrameSize = n
		}
	}
	return cfg
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithMaxFrameSize sets the largest frame payload, in bytes, the decoder
// accepts. A larger length prefix fails with ErrInvalidLength instead of
// buffering. Defaults to the PERFVIEW_MAX_FRAME_SIZE environment variable,
// or DefaultMaxFrameSize.
func WithMaxFrameSize(n uint64) Option {
	return optionFunc(func(cfg *config) {
		if n > 0 {
			cfg.maxFrameSize = n
		}
	})
}

// WithLenientFlush makes Finish try to decode a final frame whose payload is
// shorter than its declared length, using only the bytes that arrived. A
// successful decode is logged as a warning. Without this option such a frame
// fails with ErrTrailingMalformedFrame.
func WithLenientFlush() Option {
	return optionFunc(func(cfg *config) {
		cfg.lenientFlush = true
	})
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l log.FieldLogger) Option {
	return optionFunc(func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	})
}
