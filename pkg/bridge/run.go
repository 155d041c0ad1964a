package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"uantap/pkg/buffers"
	"uantap/pkg/log"
	"uantap/pkg/medium"
)

// contextWriter is implemented by links that can block on the medium, such
// as medium.Throttled.
type contextWriter interface {
	WriteFrameContext(ctx context.Context, frame []byte) error
}

// Run pumps frames between tap and link until ctx is cancelled or either
// side fails. Both tap and link are closed on return.
func (b *Bridge) Run(ctx context.Context, tap io.ReadWriteCloser, link medium.Link) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.pumpOutbound(ctx, tap, link) })
	g.Go(func() error { return b.pumpInbound(ctx, link, tap) })
	g.Go(func() error {
		b.cleanupRoutine(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// unblock the readers
		if err := tap.Close(); err != nil {
			log.Warn().Err(err).Str("bridge", b.name).Msg("bridge: closing tap")
		}
		if err := link.Close(); err != nil {
			log.Warn().Err(err).Str("bridge", b.name).Msg("bridge: closing link")
		}
		return nil
	})

	log.Info().Str("bridge", b.name).Msg("bridge: running")
	err := g.Wait()
	log.Info().Str("bridge", b.name).Msg("bridge: stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bridge) pumpOutbound(ctx context.Context, tap io.Reader, link medium.Link) error {
	buf := buffers.FrameBufferPool.Get()
	defer buffers.FrameBufferPool.Put(buf)

	for {
		n, err := tap.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge %s: tap read: %w", b.name, err)
		}
		out, err := b.Outbound(buf[:n])
		if err != nil {
			log.Debug().Err(err).Msg("bridge: dropping outbound frame")
			continue
		}
		if cw, ok := link.(contextWriter); ok {
			err = cw.WriteFrameContext(ctx, out)
		} else {
			err = link.WriteFrame(out)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, medium.ErrClosed) {
				return fmt.Errorf("bridge %s: link write: %w", b.name, err)
			}
			b.stats.FramesDropped.Add(1)
			log.Warn().Err(err).Str("bridge", b.name).Msg("bridge: link write failed")
		}
	}
}

func (b *Bridge) pumpInbound(ctx context.Context, link medium.Link, tap io.Writer) error {
	for {
		frame, err := link.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge %s: link read: %w", b.name, err)
		}
		out, err := b.Inbound(frame)
		if err != nil {
			log.Debug().Err(err).Msg("bridge: dropping inbound frame")
			continue
		}
		if _, err := tap.Write(out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge %s: tap write: %w", b.name, err)
		}
	}
}
