package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// MaxCharacterSize bounds the caption size a user may ask for.
const MaxCharacterSize = 500

// Composer writes a caption onto an image.
type Composer interface {
	Compose(src image.Image, caption string, size float64) (image.Image, error)
}

// CaptionComposer draws white outlined text, centred horizontally with its
// middle at 1/3.5 of the height above the bottom edge.
type CaptionComposer struct {
	font *opentype.Font
}

// NewCaptionComposer loads the TrueType/OpenType font at fontPath. An empty
// path selects the bundled Go Regular face.
func NewCaptionComposer(fontPath string) (*CaptionComposer, error) {
	name, data := "goregular", goregular.TTF
	if fontPath != "" {
		var err error
		if data, err = os.ReadFile(fontPath); err != nil {
			return nil, fmt.Errorf("imaging: read font: %w", err)
		}
		name = fontPath
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("imaging: parse font %s: %w", name, err)
	}
	return &CaptionComposer{font: f}, nil
}

func (c *CaptionComposer) Compose(src image.Image, caption string, size float64) (image.Image, error) {
	if size <= 0 || size > MaxCharacterSize {
		return nil, fmt.Errorf("imaging: character size %.0f out of range (1-%d)", size, MaxCharacterSize)
	}

	face, outline, err := c.face(size)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	metrics := face.Metrics()
	textWidth := font.MeasureString(face, caption).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	width, height := bounds.Dx(), bounds.Dy()
	centreY := float64(height) - float64(height)/3.5
	x := bounds.Min.X + (width-textWidth)/2
	y := bounds.Min.Y + int(centreY) - textHeight/2 + metrics.Ascent.Ceil()

	drawer := &font.Drawer{Dst: dst, Face: face}

	drawer.Src = image.NewUniform(color.Black)
	for dx := -outline; dx <= outline; dx++ {
		for dy := -outline; dy <= outline; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawer.Dot = fixed.P(x+dx, y+dy)
			drawer.DrawString(caption)
		}
	}

	drawer.Src = image.NewUniform(color.White)
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(caption)

	return dst, nil
}

func (c *CaptionComposer) face(size float64) (font.Face, int, error) {
	face, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("imaging: font face: %w", err)
	}
	outline := int(size / 50)
	if outline < 1 {
		outline = 1
	}
	return face, outline, nil
}
