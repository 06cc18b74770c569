package content

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/bmp"
)

// BodySink consumes a fully received POST body after the client has
// been acknowledged, so the client never waits on the sink.
type BodySink interface {
	Accept(body []byte) error
}

// ImageSink decodes the body as an image and writes it as BMP to Path,
// overwriting any previous upload. Bodies the decoders reject are
// written to Path as-is so the upload is never silently lost.
type ImageSink struct {
	Path string
	Log  *logrus.Logger
}

// NewImageSink returns a sink writing to path.
func NewImageSink(path string, log *logrus.Logger) *ImageSink {
	return &ImageSink{Path: path, Log: log}
}

// Accept implements BodySink.
func (s *ImageSink) Accept(body []byte) error {
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		if s.Log != nil {
			s.Log.WithError(err).Debug("body is not a decodable image, storing raw bytes")
		}
		return os.WriteFile(s.Path, body, 0o644)
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := bmp.Encode(f, img); err != nil {
		return err
	}
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"format": format,
			"bytes":  len(body),
			"path":   s.Path,
		}).Debug("upload decoded and written")
	}
	return nil
}
