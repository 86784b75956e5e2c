package detector

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for uploaded frames
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// letterboxPad is the gray value YOLO exports are trained with for padding.
const letterboxPad = 114

// DecodeImage decodes a JPEG or PNG payload. Failures are input errors.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty image payload").
			Component("detector").
			Category(errors.CategoryInput).
			Build()
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(fmt.Errorf("cannot decode image: %w", err)).
			Component("detector").
			Category(errors.CategoryInput).
			Context("payload_bytes", len(data)).
			Build()
	}
	GetLogger().Trace("image decoded",
		logger.String("format", format),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))
	return img, nil
}

// letterbox maps between source image pixels and the square model input.
type letterbox struct {
	scale      float64
	padX, padY float64
	srcW, srcH int
}

// toSource converts a model-input coordinate back to source pixels, clamped to the image.
func (lb letterbox) toSource(x, y float64) (float64, float64) {
	sx := (x - lb.padX) / lb.scale
	sy := (y - lb.padY) / lb.scale
	return clamp(sx, 0, float64(lb.srcW)), clamp(sy, 0, float64(lb.srcH))
}

// letterboxImage scales img to fit size×size preserving aspect ratio, centers it on
// a gray canvas and returns the canvas with the mapping used.
func letterboxImage(img image.Image, size int) (*image.RGBA, letterbox) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	scale := min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	newW := max(1, int(float64(srcW)*scale+0.5))
	newH := max(1, int(float64(srcH)*scale+0.5))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{letterboxPad, letterboxPad, letterboxPad, 255}}, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(canvas, image.Rect(padX, padY, padX+newW, padY+newH), img, b, draw.Src, nil)

	return canvas, letterbox{
		scale: scale,
		padX:  float64(padX),
		padY:  float64(padY),
		srcW:  srcW,
		srcH:  srcH,
	}
}

// resizeImage stretches img to w×h, used by the classifier which was trained without padding.
func resizeImage(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// fillTensorNHWC writes the RGB channels of img into dst as float32 in [0,1].
// dst must hold at least w*h*3 values.
func fillTensorNHWC(dst []float32, img *image.RGBA) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if len(dst) < w*h*3 {
		return fmt.Errorf("input tensor holds %d values, need %d", len(dst), w*h*3)
	}
	i := 0
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			p := row[x*4 : x*4+3]
			dst[i] = float32(p[0]) / 255
			dst[i+1] = float32(p[1]) / 255
			dst[i+2] = float32(p[2]) / 255
			i += 3
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
