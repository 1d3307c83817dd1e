package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardscan/internal/dto"
	"cardscan/internal/ingest"
	"cardscan/internal/model"
	"cardscan/internal/service/fraud"
	"cardscan/internal/service/statemachine"

	"github.com/spf13/cobra"
)

type replayOptions struct {
	Profile          model.Profile
	Requirement      model.Requirement
	FlashFlowEnabled bool
	NameExpiry       time.Duration
	// Interval advances the synthetic clock for frames without a timestamp.
	Interval time.Duration
}

type replayResult struct {
	Frames   int
	Final    statemachine.State
	Elapsed  time.Duration
	Retained []model.FrameData
}

func replayCmd() *cobra.Command {
	var (
		file     string
		profile  string
		bin      string
		last4    string
		flash    bool
		interval time.Duration
		expiry   float64
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded prediction stream through the completion state machine",
		Long: `Replay reads frame messages from a recording (newline-delimited JSON, or a
CBOR sequence when the file ends in .cbor) and prints every state transition
against a synthetic clock driven by the message timestamps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open recording: %w", err)
			}
			defer f.Close()

			reader := ingest.NewJSONReader(f)
			if strings.EqualFold(filepath.Ext(file), ".cbor") {
				reader = ingest.NewCBORReader(f)
			}

			opts := replayOptions{
				Profile:          model.ParseProfile(profile, model.ProfileFast),
				Requirement:      model.Requirement{Bin: bin, LastFour: last4},
				FlashFlowEnabled: flash,
				NameExpiry:       time.Duration(expiry * float64(time.Second)),
				Interval:         interval,
			}
			_, err = replay(cmd.Context(), cmd.OutOrStdout(), reader, opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Recording to replay (.jsonl or .cbor)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "fast", "Scan profile (fast, accurate)")
	cmd.Flags().StringVar(&bin, "bin", "", "Required card BIN (first six digits)")
	cmd.Flags().StringVar(&last4, "last4", "", "Required last four digits")
	cmd.Flags().BoolVar(&flash, "flash", false, "Enable the forced-flash capture phase")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "Clock step for frames without a timestamp")
	cmd.Flags().Float64Var(&expiry, "name-expiry", 4.0, "Seconds the accurate profile waits for name and expiry")
	cmd.MarkFlagRequired("file")

	return cmd
}

// replay drives one session over a recorded stream and stops at Finished or
// at the end of the stream.
func replay(ctx context.Context, w io.Writer, reader *ingest.Reader, opts replayOptions) (replayResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		now     time.Time
		start   time.Time
		started bool
		result  replayResult
	)
	clock := func() time.Time { return now }

	constraints := statemachine.Constraints{Requirement: opts.Requirement, FlashFlowEnabled: opts.FlashFlowEnabled}
	machine := statemachine.New(opts.Profile, constraints, opts.NameExpiry, clock)
	var retained []model.FrameData
	verifier := fraud.VerifierFunc(func(ctx context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error) {
		retained = frames
		return fraud.NopVerifier{}.Verify(ctx, frames, stats)
	})
	data := fraud.NewData("replay", fraud.Options{RequireOcrBeforeCapturingUxOnlyFrames: true, Verifier: verifier})
	defer data.Close()

	fmt.Fprintf(w, "profile=%s flash=%t bin=%q last4=%q\n", opts.Profile, opts.FlashFlowEnabled, opts.Requirement.Bin, opts.Requirement.LastFour)

	for {
		msg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}
		if msg.Type != "" && msg.Type != dto.MessageFrame {
			continue
		}

		capture := msg.Capture(time.Time{})
		switch {
		case !capture.CapturedAt.IsZero():
			now = capture.CapturedAt
		case started:
			now = now.Add(opts.Interval)
		}
		if !started {
			// The machine's first state starts with the first frame.
			start, started = now, true
			machine = machine.Reset()
		}
		capture.CapturedAt = now

		p := msg.Prediction()
		if p.HasOcr() {
			data.OnNumberRecognized(p, capture)
		} else {
			data.OnFrameDetected(p, capture)
		}
		result.Frames++

		prev := machine.State()
		state, changed := machine.Transition(p)
		if changed {
			fmt.Fprintf(w, "+%7.3fs frame %4d  %-18s -> %s\n", now.Sub(start).Seconds(), result.Frames, prev, state)
		}
		if state == statemachine.Finished {
			break
		}
	}

	result.Final = machine.State()
	result.Elapsed = now.Sub(start)

	if result.Final != statemachine.Finished {
		fmt.Fprintf(w, "stream ended in %s after %d frames (%.3fs)\n", result.Final, result.Frames, result.Elapsed.Seconds())
		return result, nil
	}

	stats := model.ScanStats{
		SessionID:   "replay",
		Profile:     opts.Profile,
		Requirement: opts.Requirement,
		StartedAt:   start,
		CompletedAt: now,
		FinalState:  result.Final.String(),
		FrameCount:  result.Frames,
		Success:     true,
	}
	if _, err := data.OnScanComplete(ctx, stats); err != nil {
		return result, fmt.Errorf("failed to complete scan: %w", err)
	}
	result.Retained = retained

	fmt.Fprintf(w, "finished after %d frames (%.3fs), %d frames retained:\n", result.Frames, result.Elapsed.Seconds(), len(retained))
	for i, f := range retained {
		fmt.Fprintf(w, "  %d. frame %4d  %-15s ocr=%-5t flash=%-5t last4=%s\n",
			i+1, f.Sequence, f.CenteredCardState, f.OcrSuccess, f.FlashForcedOn, f.LastFour)
	}
	return result, nil
}
