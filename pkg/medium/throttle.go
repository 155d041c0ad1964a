package medium

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limits the rate at which frames leave a link to bitsPerSecond,
// modelling the low data rate of an acoustic channel.
type Throttled struct {
	Link
	limiter *rate.Limiter
}

// Throttle wraps link. A non-positive rate returns link unchanged.
func Throttle(link Link, bitsPerSecond int) Link {
	if bitsPerSecond <= 0 {
		return link
	}
	bytesPerSecond := bitsPerSecond / 8
	if bytesPerSecond < 1 {
		bytesPerSecond = 1
	}
	// the burst must hold the largest frame or WaitN fails outright
	burst := max(bytesPerSecond, maxFrameBurst)
	return &Throttled{
		Link:    link,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

const maxFrameBurst = 2048

// WriteFrameContext blocks until the channel has capacity for frame.
func (t *Throttled) WriteFrameContext(ctx context.Context, frame []byte) error {
	if err := t.limiter.WaitN(ctx, len(frame)); err != nil {
		return fmt.Errorf("medium: throttle: %w", err)
	}
	return t.Link.WriteFrame(frame)
}

func (t *Throttled) WriteFrame(frame []byte) error {
	return t.WriteFrameContext(context.Background(), frame)
}
