package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"cardscan/internal/dto"
	"cardscan/internal/logger"

	"github.com/pebbe/zmq4"
)

const (
	streamBufferSize = 128
	recvTimeout      = 500 * time.Millisecond
)

// Stream connects a PULL socket to endpoint and returns the decoded messages
// pushed by the ML pipeline. The channel closes when ctx is done. Receive and
// decode failures are logged once every logEvery occurrences.
func Stream(ctx context.Context, endpoint string, logEvery int, logger *logger.Logger) (<-chan *dto.FrameMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}

	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := socket.SetRcvtimeo(recvTimeout); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	limiter := &logLimiter{every: int64(logEvery), logger: logger}
	out := make(chan *dto.FrameMessage, streamBufferSize)

	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			data, err := socket.RecvBytes(0)
			if err != nil {
				// Receive timeouts only give the loop a chance to see ctx.
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				limiter.warn("Ingest receive error: %v", err)
				continue
			}

			msg, err := DecodeCBOR(data)
			if err != nil {
				limiter.warn("Ingest skipped message: %v", err)
				continue
			}
			if msg.SessionID == "" {
				limiter.warn("Ingest skipped %q message without session_id", msg.Type)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	logger.Info("Ingest connected to %s", endpoint)
	return out, nil
}

type logLimiter struct {
	every  int64
	count  atomic.Int64
	logger *logger.Logger
}

func (l *logLimiter) warn(format string, v ...interface{}) {
	if l.count.Add(1)%l.every == 0 {
		l.logger.Warning(format, v...)
	}
}
