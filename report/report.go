package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kulumasiina/claim"
	"kulumasiina/internal/constants"
)

var log = logrus.New()

// Config holds the settings shared by all stages of the report pipeline
type Config struct {
	OrganizationName string
	MileageRate      decimal.Decimal
	Compress         bool
}

// Generator runs builder, renderer, merger and compressor for one claim.
type Generator struct {
	builder    *Builder
	renderer   *Renderer
	merger     *Merger
	compressor *Compressor
}

// NewGenerator wires the pipeline stages around resolver.
func NewGenerator(config Config, resolver AttachmentResolver) *Generator {
	return &Generator{
		builder: &Builder{
			Resolver:    resolver,
			MileageRate: config.MileageRate,
		},
		renderer: &Renderer{
			OrganizationName: config.OrganizationName,
			MileageRate:      config.MileageRate,
		},
		merger:     &Merger{},
		compressor: &Compressor{Enabled: config.Compress},
	}
}

// Generate produces the final PDF for c. asOf is the date printed for
// statuses that are not final yet.
func (g *Generator) Generate(ctx context.Context, c claim.Claim, asOf time.Time) ([]byte, error) {
	start := time.Now()

	parts, err := g.builder.Build(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error building report for claim %s: %w", c.ID, err)
	}

	doc, err := g.renderer.Render(ctx, c, parts, asOf)
	if err != nil {
		return nil, err
	}

	merged, err := g.merger.Merge(ctx, doc.Data, doc.AttachmentPages, parts.PDFAttachments)
	if err != nil {
		return nil, fmt.Errorf("error merging attachments for claim %s: %w", c.ID, err)
	}

	out, err := g.compressor.Compress(c.ID, merged)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"claim_id":         c.ID,
		"cover_pages":      doc.CoverPages,
		"attachment_pages": doc.AttachmentPages,
		"pdf_attachments":  len(parts.PDFAttachments),
		"bytes":            len(out),
		"duration":         time.Since(start),
	}).Info("Generated claim PDF")

	return out, nil
}

// PDFFilename is the download name of a single claim PDF.
func PDFFilename(c claim.Claim) string {
	return fmt.Sprintf("%s-%s-%s.pdf",
		claim.SanitizeName(c.Name),
		c.SubmissionDate.Format(constants.FilenameDateFormat),
		c.ID,
	)
}

// SetLogLevel sets the logging level for the report package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// AddHook registers hook on the logger of the report package
func AddHook(hook logrus.Hook) {
	log.AddHook(hook)
}
