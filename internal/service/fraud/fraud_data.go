package fraud

import (
	"context"
	"errors"
	"sync"

	"cardscan/internal/logger"
	"cardscan/internal/model"
)

// ErrClosed is returned by reads against a closed Data.
var ErrClosed = errors.New("fraud data closed")

const defaultQueueSize = 64

type Options struct {
	// RequireOcrBeforeCapturingUxOnlyFrames drops card-only frames until the
	// session has produced at least one OCR frame.
	RequireOcrBeforeCapturingUxOnlyFrames bool
	DebugRetainImages                     bool

	Verifier Verifier
	Debug    DebugSink
	Logger   *logger.Logger

	QueueSize int
}

// Snapshot is a copy of the buffer state taken on the executor.
type Snapshot struct {
	Buckets    Buckets
	HasSeenOcr bool
	Completed  bool
}

// Data retains a bounded, priority-ranked sample of a session's frames. Every
// mutation runs on a single goroutine in submission order, so the producer
// callbacks and the final drain never interleave.
type Data struct {
	sessionID string
	opts      Options

	ops       chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	buckets            Buckets
	seq                int
	hasSeenOcr         bool
	hasModelBeenCalled bool
}

// NewData starts the executor for one scan session.
func NewData(sessionID string, opts Options) *Data {
	if opts.Verifier == nil {
		opts.Verifier = NopVerifier{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	d := &Data{
		sessionID: sessionID,
		opts:      opts,
		ops:       make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Data) run() {
	defer close(d.stopped)
	for {
		select {
		case op := <-d.ops:
			op()
		case <-d.done:
			for {
				select {
				case op := <-d.ops:
					op()
				default:
					return
				}
			}
		}
	}
}

// submit queues op behind every previously submitted op. It blocks while the
// queue is full and reports false once the executor is closed.
func (d *Data) submit(op func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.ops <- op:
		return true
	case <-d.done:
		return false
	}
}

// OnFrameDetected records a frame where OCR found no number.
func (d *Data) OnFrameDetected(p model.Prediction, c model.Capture) {
	d.submit(func() { d.frameDetected(p, c) })
}

// OnNumberRecognized records a frame where OCR read a card number.
func (d *Data) OnNumberRecognized(p model.Prediction, c model.Capture) {
	d.submit(func() { d.numberRecognized(p, c) })
}

func (d *Data) frameDetected(p model.Prediction, c model.Capture) {
	if d.hasModelBeenCalled {
		return
	}
	d.seq++

	if !p.HasCard() {
		return
	}
	if d.opts.RequireOcrBeforeCapturingUxOnlyFrames && !d.hasSeenOcr {
		return
	}

	frame := model.NewFrameData(d.seq, p, c, false)
	if c.FlashForcedOn {
		d.buckets.FramesWithFlashAndCards = append(d.buckets.FramesWithFlashAndCards, frame)
	} else {
		d.buckets.FramesWithCards = append(d.buckets.FramesWithCards, frame)
	}
	d.buckets.Balance()
}

func (d *Data) numberRecognized(p model.Prediction, c model.Capture) {
	if d.hasModelBeenCalled {
		return
	}
	d.seq++
	d.hasSeenOcr = true

	frame := model.NewFrameData(d.seq, p, c, true)
	switch {
	case p.HasCard() && c.FlashForcedOn:
		d.buckets.FramesWithFlashCardsAndOcr = append(d.buckets.FramesWithFlashCardsAndOcr, frame)
	case c.FlashForcedOn:
		d.buckets.FramesWithFlashAndOcr = append(d.buckets.FramesWithFlashAndOcr, frame)
	case p.HasCard():
		d.buckets.FramesWithCardsAndOcr = append(d.buckets.FramesWithCardsAndOcr, frame)
	default:
		d.buckets.OcrOnlyFrames = append(d.buckets.OcrOnlyFrames, frame)
	}
	d.buckets.Balance()
}

// OnScanComplete drains the buffer and hands the ranked frames to the
// verifier. Only the first call per session drains and verifies; later calls,
// and calls after Close, return a nil result and no error. Producer calls that
// arrive after the drain are ignored. A call with an already cancelled ctx
// returns its error and leaves the buffer untouched.
func (d *Data) OnScanComplete(ctx context.Context, stats model.ScanStats) (*model.VerificationResult, error) {
	type drained struct {
		frames []model.FrameData
		first  bool
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(chan drained, 1)
	ok := d.submit(func() {
		if d.hasModelBeenCalled {
			result <- drained{}
			return
		}
		d.hasModelBeenCalled = true
		result <- drained{frames: d.buckets.Drain(), first: true}
	})
	if !ok {
		return nil, nil
	}

	// Once queued the drain always runs, so its frames must be collected
	// regardless of ctx.
	var out drained
	select {
	case out = <-result:
	case <-d.stopped:
		select {
		case out = <-result:
		default:
			return nil, nil
		}
	}

	if !out.first {
		return nil, nil
	}

	if d.opts.Logger != nil {
		d.opts.Logger.Info("Scan %s complete: %d frames retained for verification", d.sessionID, len(out.frames))
	}

	if d.opts.DebugRetainImages && d.opts.Debug != nil {
		debugFrames := make([]model.FrameData, len(out.frames))
		copy(debugFrames, out.frames)
		d.opts.Debug.PublishDebugFrames(d.sessionID, debugFrames)
	}

	return d.opts.Verifier.Verify(ctx, out.frames, stats)
}

// Snapshot copies the current buffer state. It is ordered after every
// previously submitted callback.
func (d *Data) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	ok := d.submit(func() {
		result <- Snapshot{
			Buckets:    d.buckets.clone(),
			HasSeenOcr: d.hasSeenOcr,
			Completed:  d.hasModelBeenCalled,
		}
	})
	if !ok {
		return Snapshot{}, ErrClosed
	}

	select {
	case s := <-result:
		return s, nil
	case <-d.stopped:
		select {
		case s := <-result:
			return s, nil
		default:
			return Snapshot{}, ErrClosed
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Close runs any queued callbacks and stops the executor.
func (d *Data) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	<-d.stopped
}
