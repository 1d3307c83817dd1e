package fraud

import (
	"math/rand"
	"testing"

	"cardscan/internal/model"
)

func frames(start, n int) []model.FrameData {
	out := make([]model.FrameData, n)
	for i := range out {
		out[i] = model.FrameData{Sequence: start + i}
	}
	return out
}

func sequences(in []model.FrameData) []int {
	out := make([]int, len(in))
	for i, f := range in {
		out[i] = f.Sequence
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuckets_CapacityInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var b Buckets

	for i := 1; i <= 500; i++ {
		f := model.FrameData{Sequence: i}
		switch rng.Intn(6) {
		case 0:
			b.FramesWithCardsAndOcr = append(b.FramesWithCardsAndOcr, f)
		case 1:
			b.FramesWithCards = append(b.FramesWithCards, f)
		case 2:
			b.OcrOnlyFrames = append(b.OcrOnlyFrames, f)
		case 3:
			b.FramesWithFlashCardsAndOcr = append(b.FramesWithFlashCardsAndOcr, f)
		case 4:
			b.FramesWithFlashAndCards = append(b.FramesWithFlashAndCards, f)
		case 5:
			b.FramesWithFlashAndOcr = append(b.FramesWithFlashAndOcr, f)
		}
		b.Balance()

		regular := len(b.FramesWithCardsAndOcr) + len(b.FramesWithCards) + len(b.OcrOnlyFrames)
		flash := len(b.FramesWithFlashCardsAndOcr) + len(b.FramesWithFlashAndCards) + len(b.FramesWithFlashAndOcr)
		if regular > MaxScans {
			t.Fatalf("step %d: %d regular frames exceed %d", i, regular, MaxScans)
		}
		if flash > MaxFlashScans {
			t.Fatalf("step %d: %d flash frames exceed %d", i, flash, MaxFlashScans)
		}
	}
}

func TestBuckets_PriorityRetentionKeepsMostRecent(t *testing.T) {
	b := Buckets{
		FramesWithCards:       frames(1, 3),
		OcrOnlyFrames:         frames(4, 2),
		FramesWithCardsAndOcr: frames(10, 7),
	}
	b.Balance()

	if len(b.FramesWithCards) != 0 || len(b.OcrOnlyFrames) != 0 {
		t.Errorf("Lower priority buckets should be empty, got cards=%d ocr=%d", len(b.FramesWithCards), len(b.OcrOnlyFrames))
	}
	want := []int{12, 13, 14, 15, 16}
	if got := sequences(b.FramesWithCardsAndOcr); !equalInts(got, want) {
		t.Errorf("Expected suffix %v, got %v", want, got)
	}
}

func TestBuckets_RemainingBudgetFlowsDown(t *testing.T) {
	b := Buckets{
		FramesWithCardsAndOcr: frames(1, 2),
		FramesWithCards:       frames(10, 5),
		OcrOnlyFrames:         frames(20, 4),
	}
	b.Balance()

	if got := sequences(b.FramesWithCardsAndOcr); !equalInts(got, []int{1, 2}) {
		t.Errorf("card+ocr: got %v", got)
	}
	if got := sequences(b.FramesWithCards); !equalInts(got, []int{12, 13, 14}) {
		t.Errorf("cards: got %v", got)
	}
	if len(b.OcrOnlyFrames) != 0 {
		t.Errorf("ocr only should have no budget left, got %v", sequences(b.OcrOnlyFrames))
	}
}

func TestBuckets_FlashBalancedIndependently(t *testing.T) {
	b := Buckets{
		FramesWithCardsAndOcr:      frames(1, 5),
		FramesWithFlashAndCards:    frames(10, 2),
		FramesWithFlashAndOcr:      frames(20, 4),
		FramesWithFlashCardsAndOcr: frames(30, 1),
	}
	b.Balance()

	if len(b.FramesWithCardsAndOcr) != MaxScans {
		t.Errorf("Flash frames must not consume the regular budget, got %d", len(b.FramesWithCardsAndOcr))
	}
	if got := sequences(b.FramesWithFlashCardsAndOcr); !equalInts(got, []int{30}) {
		t.Errorf("flash card+ocr: got %v", got)
	}
	if got := sequences(b.FramesWithFlashAndCards); !equalInts(got, []int{10, 11}) {
		t.Errorf("flash cards: got %v", got)
	}
	if len(b.FramesWithFlashAndOcr) != 0 {
		t.Errorf("flash ocr should be empty, got %v", sequences(b.FramesWithFlashAndOcr))
	}
}

func TestBuckets_DrainOrderAndCap(t *testing.T) {
	b := Buckets{
		FramesWithFlashAndOcr:      frames(1, 1),
		FramesWithFlashAndCards:    frames(2, 1),
		FramesWithFlashCardsAndOcr: frames(3, 1),
		OcrOnlyFrames:              frames(4, 1),
		FramesWithCards:            frames(5, 2),
		FramesWithCardsAndOcr:      frames(7, 3),
	}

	got := sequences(b.Drain())
	// Nine frames in priority order, the lowest priority one is dropped.
	want := []int{2, 3, 4, 5, 6, 7, 8, 9}
	if !equalInts(got, want) {
		t.Errorf("Drain = %v, expected %v", got, want)
	}
	if b.Len() != 0 {
		t.Errorf("Drain should empty the buckets, %d left", b.Len())
	}
}
