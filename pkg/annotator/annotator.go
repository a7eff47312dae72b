// Package annotator draws detection overlays onto rescaled plant images.
package annotator

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/smartfarm/plant-health/pkg/geometry"
	"github.com/smartfarm/plant-health/pkg/types"
)

const (
	// DefaultTargetWidth is the width the annotated copy is rescaled to.
	DefaultTargetWidth = 1200
	// MaxTargetWidth caps the rescale target to avoid absurd output sizes.
	MaxTargetWidth = 4000
)

var (
	boxColor  = color.NRGBA{R: 255, A: 220}
	textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	chipColor = color.NRGBA{A: 200}
)

// Annotate rescales the source image so its width equals targetWidth
// (preserving aspect ratio, capped at MaxTargetWidth), draws each detection's
// bounding box and label chip on a transparent overlay, composites the
// overlay over the rescaled base and returns the flattened result as PNG
// bytes. Detections whose box is missing, too short, or degenerate after
// mapping are skipped. All drawing happens on the overlay so base pixels are
// only touched once, at the composite step.
func Annotate(imageBytes []byte, detections []types.RawDetection, targetWidth int) ([]byte, error) {
	if targetWidth <= 0 {
		targetWidth = DefaultTargetWidth
	}
	if targetWidth > MaxTargetWidth {
		targetWidth = MaxTargetWidth
	}

	src, err := decodeImage(imageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	origW := src.Bounds().Dx()
	origH := src.Bounds().Dy()
	if origW == 0 {
		return nil, fmt.Errorf("image width is zero")
	}

	scale := float64(targetWidth) / float64(origW)
	newW := int(math.Round(float64(origW) * scale))
	newH := int(math.Round(float64(origH) * scale))

	var base *image.NRGBA
	if newW != origW || newH != origH {
		base = imaging.Resize(src, newW, newH, imaging.Lanczos)
	} else {
		base = imaging.Clone(src)
	}

	overlay := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	face := labelFace(newW, newH)
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	thickness := int(math.Round(float64(newW+newH) / 900))
	if thickness < 1 {
		thickness = 1
	}

	for _, d := range detections {
		box, ok := d.BoundingBox()
		if !ok {
			continue
		}
		x1, y1, x2, y2 := geometry.ToPixels(box, newW, newH)
		if x2-x1 <= 1 || y2-y1 <= 1 {
			continue
		}

		drawRectOutline(overlay, x1, y1, x2, y2, boxColor, thickness)

		text := labelText(d)
		textW := font.MeasureString(face, text).Ceil()

		pad := textH / 3
		if pad < 4 {
			pad = 4
		}
		chipX0 := x1
		chipY0 := y1 - textH - 2*pad
		if chipY0 <= 0 {
			// not enough room above the box, place the chip below its top edge
			chipY0 = y1 + pad
		}
		chipX1 := chipX0 + textW + 2*pad
		chipY1 := chipY0 + textH + 2*pad

		fillRect(overlay, chipX0, chipY0, chipX1, chipY1, chipColor)

		drawer := font.Drawer{
			Dst:  overlay,
			Src:  image.NewUniform(textColor),
			Face: face,
			Dot:  fixed.P(chipX0+pad, chipY0+pad+metrics.Ascent.Ceil()),
		}
		drawer.DrawString(text)
	}

	draw.Draw(base, base.Bounds(), overlay, image.Point{}, draw.Over)

	// flatten alpha to an opaque image
	for i := 3; i < len(base.Pix); i += 4 {
		base.Pix[i] = 0xff
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, base, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeImage decodes PNG/JPEG/GIF/BMP/TIFF via registered decoders with an
// explicit WebP fallback.
func decodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unknown or unsupported image format")
}

// labelText formats the chip text as the label optionally followed by a
// two-decimal confidence. Confidence above 1 is treated as a percentage; a
// non-numeric confidence just omits the suffix, it never drops the label.
func labelText(d types.RawDetection) string {
	label := "unknown"
	if s, ok := d["label"].(string); ok && s != "" {
		label = s
	}
	if raw, present := d["confidence"]; present && raw != nil {
		if conf, ok := types.ToNumber(raw); ok {
			if conf > 1 {
				conf /= 100.0
			}
			return fmt.Sprintf("%s %.2f", label, conf)
		}
	}
	return label
}

// labelFace sizes the label font with the image and falls back to the fixed
// basicfont face if the embedded face cannot be loaded, so annotation never
// fails for font reasons.
func labelFace(w, h int) font.Face {
	size := min(w, h) / 45
	if size < 12 {
		size = 12
	}

	parsed, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

func drawRectOutline(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y1+s, x1, x2+1, c)
		drawHLine(img, y2-s, x1, x2+1, c)
		drawVLine(img, x1+s, y1, y2+1, c)
		drawVLine(img, x2-s, y1, y2+1, c)
	}
}

func fillRect(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA) {
	for y := y1; y < y2; y++ {
		drawHLine(img, y, x1, x2, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
