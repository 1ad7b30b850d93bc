package stream

import (
	"context"
	"errors"
	"io"

	"github.com/dvcrn/amazonq-proxy/internal/metrics"
	"github.com/rs/zerolog"
)

// PipeOptions bounds one stream translation.
type PipeOptions struct {
	ChunkSize     int // upstream read size
	BufferMaxSize int // Scanner bound
	QueueSize     int // chunks buffered between reader and emitter
	Logger        *zerolog.Logger
}

const (
	defaultChunkSize = 1024
	defaultQueueSize = 16
)

type readResult struct {
	data []byte
	err  error
}

// Pipe reads body on a producer goroutine into a bounded queue and forwards
// each fragment to sess as soon as it is extracted. It opens the session,
// closes it on upstream EOF and fails it on a read error. When ctx is done,
// reading and emission stop without writing anything further. body is
// always closed.
func Pipe(ctx context.Context, body io.ReadCloser, sess *Session, opts PipeOptions) error {
	defer body.Close()

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan readResult, opts.QueueSize)
	go produce(ctx, body, opts.ChunkSize, queue)

	if err := sess.Open(); err != nil {
		return err
	}

	scanner := NewScanner(opts.BufferMaxSize)
	format := string(sess.Format())
	forward := func() error {
		for {
			fragment, ok := scanner.Next()
			if !ok {
				return nil
			}
			if fragment == "" {
				continue
			}
			if err := sess.Fragment(fragment); err != nil {
				return err
			}
			metrics.FragmentsTotal.WithLabelValues(format).Inc()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Err(ctx.Err()).Msg("Stream cancelled by client")
			return ctx.Err()
		case res := <-queue:
			if len(res.data) > 0 {
				if scanner.Write(res.data) {
					metrics.BufferTruncationsTotal.Inc()
					logger.Warn().
						Int("buffer_max_size", opts.BufferMaxSize).
						Msg("⚠️  Stream buffer overflow, discarded oldest bytes")
				}
				if err := forward(); err != nil {
					return err
				}
			}
			if res.err == nil {
				continue
			}
			if errors.Is(res.err, io.EOF) {
				if err := forward(); err != nil {
					return err
				}
				if scanner.Buffered() > 0 {
					logger.Debug().Int("bytes", scanner.Buffered()).Msg("Discarding trailing upstream bytes")
				}
				return sess.Close()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(res.err).Msg("❌ Upstream stream read failed")
			if err := sess.Fail(res.err); err != nil {
				logger.Debug().Err(err).Msg("Failed to write stream error frame")
			}
			return res.err
		}
	}
}

// produce sends each read, then one final result carrying the terminal error.
func produce(ctx context.Context, body io.Reader, chunkSize int, queue chan<- readResult) {
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		res := readResult{err: err}
		if n > 0 {
			res.data = append([]byte(nil), buf[:n]...)
		}
		if n == 0 && err == nil {
			continue
		}
		select {
		case queue <- res:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
