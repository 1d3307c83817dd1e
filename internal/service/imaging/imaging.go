package imaging

import (
	"fmt"
	"image"
	"image/color"

	"cardscan/internal/logger"
	"cardscan/internal/model"

	"gocv.io/x/gocv"
)

// JPEGQuality is used for every re-encoded frame.
const JPEGQuality = 90

// Service crops and annotates captured frames.
type Service struct {
	logger *logger.Logger
}

func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Crop cuts a square region centred on the card box out of a full frame and
// returns it as JPEG. The square's side is the card box's larger dimension,
// clamped to the frame.
func (s *Service) Crop(full []byte, box model.Box) ([]byte, error) {
	if box.Empty() {
		return nil, fmt.Errorf("empty card box")
	}

	mat, err := decode(full)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	rect := squareAround(box, mat.Cols(), mat.Rows())
	if rect.Empty() {
		return nil, fmt.Errorf("card box %v outside frame %dx%d", box, mat.Cols(), mat.Rows())
	}

	region := mat.Region(rect)
	defer region.Close()

	return encode(region)
}

var (
	numberColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	expiryColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	cardColor   = color.RGBA{R: 0, G: 0, B: 255, A: 0}
)

// Annotate draws the OCR boxes of a retained frame onto its full image for the
// debug viewer.
func (s *Service) Annotate(full []byte, frame model.FrameData) ([]byte, error) {
	mat, err := decode(full)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, box := range frame.NumberBoxes {
		if err := gocv.Rectangle(&mat, rect(box), numberColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}
	}
	for _, box := range frame.ExpiryBoxes {
		if err := gocv.Rectangle(&mat, rect(box), expiryColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}
	}

	label := frame.CenteredCardState.String()
	if frame.OcrSuccess {
		label = fmt.Sprintf("%s ****%s", label, frame.LastFour)
	}
	if frame.FlashForcedOn {
		label += " flash"
	}
	if err := gocv.PutText(&mat, label, image.Pt(10, 25), gocv.FontHersheySimplex, 0.7, cardColor, 2); err != nil {
		return nil, fmt.Errorf("failed to draw text: %v", err)
	}

	buf, err := encode(mat)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	return buf, nil
}

func rect(b model.Box) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// squareAround returns the largest square centred on box that fits in a
// cols x rows frame, no larger than the box's longer side.
func squareAround(box model.Box, cols, rows int) image.Rectangle {
	side := max(box.Width, box.Height)
	side = min(side, cols, rows)

	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2

	x := min(max(cx-side/2, 0), cols-side)
	y := min(max(cy-side/2, 0), rows-side)

	return image.Rect(x, y, x+side, y+side).Intersect(image.Rect(0, 0, cols, rows))
}

func decode(img []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return mat, fmt.Errorf("failed to decode image: %v", err)
	}
	if mat.Empty() {
		mat.Close()
		return mat, fmt.Errorf("decoded image is empty")
	}
	return mat, nil
}

func encode(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
