package fraud

import "cardscan/internal/model"

const (
	// MaxScans caps the frames kept across the three non-flash buckets.
	MaxScans = 5
	// MaxFlashScans caps the frames kept across the three flash buckets.
	MaxFlashScans = 3
)

// Buckets partitions retained frames by (card present, OCR success, flash forced).
type Buckets struct {
	FramesWithCardsAndOcr []model.FrameData `json:"frames_with_cards_and_ocr"`
	FramesWithCards       []model.FrameData `json:"frames_with_cards"`
	OcrOnlyFrames         []model.FrameData `json:"ocr_only_frames"`

	FramesWithFlashCardsAndOcr []model.FrameData `json:"frames_with_flash_cards_and_ocr"`
	FramesWithFlashAndCards    []model.FrameData `json:"frames_with_flash_and_cards"`
	FramesWithFlashAndOcr      []model.FrameData `json:"frames_with_flash_and_ocr"`
}

// Len is the total number of retained frames.
func (b *Buckets) Len() int {
	return len(b.FramesWithCardsAndOcr) + len(b.FramesWithCards) + len(b.OcrOnlyFrames) +
		len(b.FramesWithFlashCardsAndOcr) + len(b.FramesWithFlashAndCards) + len(b.FramesWithFlashAndOcr)
}

// Balance enforces the capacity budgets. Buckets are served in priority order
// (card+OCR, card, OCR) from a shared budget, each keeping its most recent
// frames. Flash buckets are balanced the same way with their own budget.
func (b *Buckets) Balance() {
	b.FramesWithCardsAndOcr, b.FramesWithCards, b.OcrOnlyFrames =
		balance(MaxScans, b.FramesWithCardsAndOcr, b.FramesWithCards, b.OcrOnlyFrames)

	b.FramesWithFlashCardsAndOcr, b.FramesWithFlashAndCards, b.FramesWithFlashAndOcr =
		balance(MaxFlashScans, b.FramesWithFlashCardsAndOcr, b.FramesWithFlashAndCards, b.FramesWithFlashAndOcr)
}

func balance(budget int, cardsAndOcr, cards, ocr []model.FrameData) ([]model.FrameData, []model.FrameData, []model.FrameData) {
	cardsAndOcrCount := min(len(cardsAndOcr), budget)
	cardsCount := min(len(cards), budget-cardsAndOcrCount)
	ocrCount := min(len(ocr), budget-cardsAndOcrCount-cardsCount)

	return suffix(cardsAndOcr, cardsAndOcrCount), suffix(cards, cardsCount), suffix(ocr, ocrCount)
}

// suffix returns the last n frames in a fresh slice so the dropped prefix can
// be collected.
func suffix(frames []model.FrameData, n int) []model.FrameData {
	if n >= len(frames) {
		return frames
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.FrameData, n)
	copy(out, frames[len(frames)-n:])
	return out
}

// Drain concatenates the buckets from lowest to highest priority and keeps the
// last MaxScans+MaxFlashScans frames.
func (b *Buckets) Drain() []model.FrameData {
	all := make([]model.FrameData, 0, b.Len())
	all = append(all, b.FramesWithFlashAndOcr...)
	all = append(all, b.FramesWithFlashAndCards...)
	all = append(all, b.FramesWithFlashCardsAndOcr...)
	all = append(all, b.OcrOnlyFrames...)
	all = append(all, b.FramesWithCards...)
	all = append(all, b.FramesWithCardsAndOcr...)

	*b = Buckets{}
	return suffix(all, MaxScans+MaxFlashScans)
}

// clone copies the bucket slices so a snapshot can leave the executor.
func (b *Buckets) clone() Buckets {
	cp := func(in []model.FrameData) []model.FrameData {
		if in == nil {
			return nil
		}
		out := make([]model.FrameData, len(in))
		copy(out, in)
		return out
	}
	return Buckets{
		FramesWithCardsAndOcr:      cp(b.FramesWithCardsAndOcr),
		FramesWithCards:            cp(b.FramesWithCards),
		OcrOnlyFrames:              cp(b.OcrOnlyFrames),
		FramesWithFlashCardsAndOcr: cp(b.FramesWithFlashCardsAndOcr),
		FramesWithFlashAndCards:    cp(b.FramesWithFlashAndCards),
		FramesWithFlashAndOcr:      cp(b.FramesWithFlashAndOcr),
	}
}
