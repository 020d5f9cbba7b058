package monitor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/shmaudio/internal/audiocore/ringbuffer"
	"github.com/tphakala/shmaudio/internal/logger"
)

// pollInterval is how often an observer checks the shared flags while it
// waits for the stream to start.
const pollInterval = 5 * time.Millisecond

// RegionObserver is a Source backed by a ring buffer attached by name, for
// monitoring a stream that runs in another process. Its signals are the
// running and finished flags in the shared header.
type RegionObserver struct {
	rb       *ringbuffer.RingBuffer
	playback bool
	log      logger.Logger
	waitLog  *rate.Limiter
}

// Observe attaches to the region name. Set playback when the region belongs
// to a player so views follow the read index.
func Observe(name string, playback bool) (*RegionObserver, error) {
	rb, err := ringbuffer.Attach(name)
	if err != nil {
		return nil, err
	}
	return &RegionObserver{
		rb:       rb,
		playback: playback,
		log:      logger.Global().Module("monitor").With(logger.String("region", name)),
		waitLog:  rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// WaitRunning polls the shared flags until the stream runs or finished.
func (o *RegionObserver) WaitRunning(ctx context.Context) error {
	if o.rb.Running() || o.rb.Finished() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if o.rb.Running() || o.rb.Finished() {
			return nil
		}
		if o.waitLog.Allow() {
			o.log.Debug("waiting for stream to start")
		}
	}
}

// Finished reports the shared finished flag.
func (o *RegionObserver) Finished() bool { return o.rb.Finished() }

// Buffer returns a view over the attached buffer.
func (o *RegionObserver) Buffer(chunk int) *ringbuffer.View {
	if o.playback {
		return o.rb.PlaybackView(chunk)
	}
	return o.rb.View(chunk)
}

// RingBuffer returns the attached buffer.
func (o *RegionObserver) RingBuffer() *ringbuffer.RingBuffer { return o.rb }

// Close detaches from the region.
func (o *RegionObserver) Close() error { return o.rb.Close() }
