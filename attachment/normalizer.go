package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"kulumasiina/claim"
	"kulumasiina/storage"
)

var log = logrus.New()

// Kind is the detected binary type of an attachment.
type Kind int

const (
	// KindUnresolved marks an attachment whose bytes could not be fetched or decoded.
	KindUnresolved Kind = iota
	KindImage
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "unresolved"
	}
}

// Largest edge of a normalized image, in pixels.
const maxImageEdge = 2000

var pdfMagic = []byte("%PDF")

// Resolved holds the normalized payload of one attachment. Image data is
// always PNG. Unresolved attachments carry an empty buffer.
type Resolved struct {
	Kind Kind
	Data []byte
}

// IsPDF reports whether data starts with the PDF magic number.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// Normalizer fetches attachment blobs and converts them into embeddable form.
type Normalizer struct {
	Store       storage.FileStore
	Concurrency int
}

// NewNormalizer creates a Normalizer reading from store.
func NewNormalizer(store storage.FileStore, concurrency int) *Normalizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Normalizer{Store: store, Concurrency: concurrency}
}

// Normalize fetches and converts a single attachment. Failures are logged and
// degrade to an unresolved attachment so the rest of the claim still exports.
func (n *Normalizer) Normalize(ctx context.Context, att claim.Attachment) Resolved {
	attLogger := log.WithFields(logrus.Fields{
		"attachment_id": att.ID,
		"file_id":       att.FileID,
		"filename":      att.Filename,
	})

	data, err := n.Store.Get(ctx, att.FileID)
	if err != nil {
		var unavailable *storage.UnavailableError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			attLogger.Warn("Attachment file is missing from storage")
		case errors.As(err, &unavailable):
			attLogger.WithError(err).Error("File storage unavailable while fetching attachment")
		default:
			attLogger.WithError(err).Warn("Failed to fetch attachment")
		}
		return Resolved{Kind: KindUnresolved, Data: []byte{}}
	}

	resolved, err := Convert(data)
	if err != nil {
		attLogger.WithError(err).Warn("Failed to normalize attachment")
		return Resolved{Kind: KindUnresolved, Data: []byte{}}
	}

	attLogger.WithField("kind", resolved.Kind.String()).Debug("Normalized attachment")
	return resolved
}

// NormalizeAll normalizes attachments concurrently. The result has the same
// length and order as atts.
func (n *Normalizer) NormalizeAll(ctx context.Context, atts []claim.Attachment) []Resolved {
	results := make([]Resolved, len(atts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.Concurrency)

	for i, att := range atts {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = Resolved{Kind: KindUnresolved, Data: []byte{}}
				return nil
			}
			results[i] = n.Normalize(gctx, att)
			return nil
		})
	}

	// Workers never return errors; failures are folded into the results.
	_ = g.Wait()
	return results
}

// Convert detects the type of data and re-encodes images as PNG. PDFs pass
// through untouched.
func Convert(data []byte) (Resolved, error) {
	if len(data) == 0 {
		return Resolved{}, fmt.Errorf("empty attachment")
	}
	if IsPDF(data) {
		return Resolved{Kind: KindPDF, Data: data}, nil
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Resolved{}, fmt.Errorf("unsupported attachment type %s", mtype.String())
	}

	png, err := toPNG(data)
	if err != nil {
		return Resolved{}, fmt.Errorf("error converting %s to png: %w", mtype.String(), err)
	}
	return Resolved{Kind: KindImage, Data: png}, nil
}

func toPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	img = fitWithin(img, maxImageEdge)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fitWithin(img image.Image, edge int) image.Image {
	b := img.Bounds()
	if b.Dx() <= edge && b.Dy() <= edge {
		return img
	}
	return imaging.Fit(img, edge, edge, imaging.Lanczos)
}

// SetLogLevel sets the log level for the attachment package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// AddHook registers hook on the logger of the attachment package
func AddHook(hook logrus.Hook) {
	log.AddHook(hook)
}
