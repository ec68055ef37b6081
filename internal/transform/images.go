package transform

import (
	"bytes"
	"context"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/ShayCichocki/assetflow/internal/pipeline"
)

// ImageOptions controls the image optimizer.
type ImageOptions struct {
	// Level is 0 to 7; higher levels trade time for size. It only affects
	// lossless encoders.
	Level int
	// JPEGQuality opts in to lossy JPEG re-encoding at this quality. Zero
	// leaves JPEGs untouched.
	JPEGQuality int
}

func (o ImageOptions) pngLevel() png.CompressionLevel {
	switch {
	case o.Level <= 0:
		return png.BestSpeed
	case o.Level < 4:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// OptimizeImages losslessly re-encodes PNG and GIF images and minifies SVG.
// JPEGs are only re-encoded when ImageOptions.JPEGQuality is set. A file is
// only replaced when the result is smaller. Unknown formats pass through.
func OptimizeImages(opts ImageOptions) pipeline.Stage {
	m := newMinifier()
	return pipeline.Map("imagemin", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		var (
			optimized []byte
			err       error
		)
		switch f.Ext() {
		case ".png":
			optimized, err = optimizePNG(f.Contents, opts.pngLevel())
		case ".jpg", ".jpeg":
			if opts.JPEGQuality <= 0 {
				return f, nil
			}
			optimized, err = optimizeJPEG(f.Contents, opts.JPEGQuality)
		case ".gif":
			optimized, err = optimizeGIF(f.Contents)
		case ".svg":
			optimized, err = m.Bytes(mimeSVG, f.Contents)
		default:
			return f, nil
		}
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = smaller(f.Contents, optimized)
		return out, nil
	})
}

func optimizePNG(src []byte, level png.CompressionLevel) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeJPEG(src []byte, quality int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeGIF(src []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
