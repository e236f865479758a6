package thumbnail

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Generator renders a thumbnail of the image at src into w
type Generator interface {
	Generate(ctx context.Context, src string, w io.Writer) error
}

// ImageGenerator decodes JPEG, PNG, GIF and BMP originals, crops them to a
// centered square and scales them to Size pixels, upscaling small originals
type ImageGenerator struct {
	Size    int
	Quality int
}

// NewImageGenerator creates a generator, falling back to 160px at quality 70
func NewImageGenerator(size, quality int) *ImageGenerator {
	if size <= 0 {
		size = 160
	}
	if quality <= 0 || quality > 100 {
		quality = 70
	}
	return &ImageGenerator{Size: size, Quality: quality}
}

// Generate implements Generator
func (g *ImageGenerator) Generate(ctx context.Context, src string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open original: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	crop := coverRect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, g.Size, g.Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	if err := jpeg.Encode(w, dst, &jpeg.Options{Quality: g.Quality}); err != nil {
		return fmt.Errorf("failed to encode %s thumbnail: %w", format, err)
	}
	return nil
}

// coverRect returns the largest centered square inside b
func coverRect(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x := b.Min.X + (b.Dx()-side)/2
	y := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}
