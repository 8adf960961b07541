// Package codec wraps libvips as the transform backend: decode, optional
// Lanczos downscale, encode to the requested format.
package codec

import (
	"fmt"
	"path"
	"strings"

	"github.com/cshum/vipsgen/vips"

	"imgcast/internal/pathspec"
)

// Codec implements transform.Transformer on top of vips. The caller is
// responsible for vips.Startup/Shutdown.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

// Dimensions reports the pixel size of the source image.
func (c *Codec) Dimensions(src []byte, sourcePath string) (int, int, error) {
	image, err := loadBuffer(src, sourcePath)
	if err != nil {
		return 0, 0, err
	}
	defer image.Close()

	return image.Width(), image.Height(), nil
}

// Transform decodes src, scales it to width x height when both are
// positive, and encodes it to format.
func (c *Codec) Transform(src []byte, sourcePath string, width, height int, format pathspec.Format) ([]byte, error) {
	image, err := loadBuffer(src, sourcePath)
	if err != nil {
		return nil, err
	}
	defer image.Close()

	if width > 0 && height > 0 {
		scale := float64(width) / float64(image.Width())
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := image.Resize(scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("resize: %w", err)
		}
	}

	return saveBuffer(image, format)
}

// loadBuffer decodes a source image, choosing the loader from the file
// extension the way requests address sources.
func loadBuffer(src []byte, sourcePath string) (*vips.Image, error) {
	ext := strings.ToLower(path.Ext(sourcePath))

	switch ext {
	case ".jpg", ".jpeg":
		return vips.NewJpegloadBuffer(src, vips.DefaultJpegloadBufferOptions())
	case ".png":
		return vips.NewPngloadBuffer(src, vips.DefaultPngloadBufferOptions())
	case ".webp":
		return vips.NewWebploadBuffer(src, vips.DefaultWebploadBufferOptions())
	case ".tif", ".tiff":
		return vips.NewTiffloadBuffer(src, vips.DefaultTiffloadBufferOptions())
	case ".gif":
		return vips.NewGifloadBuffer(src, vips.DefaultGifloadBufferOptions())
	case ".avif", ".heic":
		return vips.NewHeifloadBuffer(src, vips.DefaultHeifloadBufferOptions())
	default:
		return nil, fmt.Errorf("unsupported source format: %s", ext)
	}
}

func saveBuffer(image *vips.Image, format pathspec.Format) ([]byte, error) {
	switch format {
	case pathspec.FormatJpeg:
		if err := flattenAlpha(image); err != nil {
			return nil, err
		}
		opts := vips.DefaultJpegsaveBufferOptions()
		opts.Q = 85
		return image.JpegsaveBuffer(opts)
	case pathspec.FormatWebp:
		opts := vips.DefaultWebpsaveBufferOptions()
		opts.Q = 80
		return image.WebpsaveBuffer(opts)
	case pathspec.FormatAvif:
		opts := vips.DefaultHeifsaveBufferOptions()
		opts.Q = 75
		opts.Compression = vips.ForeignHeifCompressionAv1
		return image.HeifsaveBuffer(opts)
	case pathspec.FormatPng:
		return image.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	case pathspec.FormatGif:
		return image.GifsaveBuffer(vips.DefaultGifsaveBufferOptions())
	case pathspec.FormatIco:
		// Needs libvips built with ImageMagick support.
		opts := vips.DefaultMagicksaveBufferOptions()
		opts.Format = "ico"
		return image.MagicksaveBuffer(opts)
	default:
		return nil, fmt.Errorf("unsupported target format: %s", format)
	}
}

// flattenAlpha composites transparency onto white for formats without an
// alpha channel.
func flattenAlpha(image *vips.Image) error {
	if !image.HasAlpha() {
		return nil
	}
	opts := vips.DefaultFlattenOptions()
	opts.Background = []float64{255, 255, 255}
	if err := image.Flatten(opts); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	return nil
}
