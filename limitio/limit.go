// Package limitio throttles streams to a byte rate, used to keep bulk
// message ingestion from starving interactive operations.
package limitio

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type Reader struct {
	source  io.Reader
	limiter *rate.Limiter
}

// NewReader wraps a reader. Without a rate limit set it reads through
// unchanged.
func NewReader(source io.Reader) *Reader {
	return &Reader{source: source}
}

// SetRateLimit caps the reader at bytesPerSec, served in chunks of at
// most burst bytes.
func (r *Reader) SetRateLimit(bytesPerSec float64, burst int) {
	r.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.limiter == nil {
		return r.source.Read(p)
	}
	if err := r.limiter.WaitN(context.Background(), r.limiter.Burst()); err != nil {
		return 0, err
	}
	n, err := r.source.Read(p)
	if err != nil {
		return n, err
	}
	// the first burst is paid for: wait out the rest of what was read
	return n, payFor(r.limiter, n-r.limiter.Burst())
}

type Writer struct {
	target  io.Writer
	limiter *rate.Limiter
}

// NewWriter wraps a writer. Without a rate limit set it writes through
// unchanged.
func NewWriter(target io.Writer) *Writer {
	return &Writer{target: target}
}

// SetRateLimit caps the writer at bytesPerSec, served in chunks of at
// most burst bytes.
func (w *Writer) SetRateLimit(bytesPerSec float64, burst int) {
	w.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.limiter == nil {
		return w.target.Write(p)
	}
	if err := w.limiter.WaitN(context.Background(), w.limiter.Burst()); err != nil {
		return 0, err
	}
	n, err := w.target.Write(p)
	if err != nil {
		return n, err
	}
	return n, payFor(w.limiter, n-w.limiter.Burst())
}

// payFor blocks until the limiter has released tokens for the given
// number of bytes, one burst at a time.
func payFor(limiter *rate.Limiter, bytes int) error {
	for bytes > 0 {
		chunk := bytes
		if chunk > limiter.Burst() {
			chunk = limiter.Burst()
		}
		if err := limiter.WaitN(context.Background(), chunk); err != nil {
			return err
		}
		bytes -= chunk
	}
	return nil
}
