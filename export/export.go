package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kulumasiina/api"
	"kulumasiina/bookkeeping"
	"kulumasiina/claim"
	"kulumasiina/internal/constants"
	"kulumasiina/report"
)

var log = logrus.New()

// PDFGenerator renders the final PDF of a claim.
type PDFGenerator interface {
	Generate(ctx context.Context, c claim.Claim, asOf time.Time) ([]byte, error)
}

// Packager writes bookkeeping exports.
type Packager interface {
	Package(ctx context.Context, infos []bookkeeping.Info) (bookkeeping.File, error)
}

// Config holds export settings
type Config struct {
	MileageRate decimal.Decimal

	// Concurrency bounds how many claim PDFs a batch export renders at once
	Concurrency int
}

// Service decides which exports a claim is eligible for and runs the
// document pipeline for them.
type Service struct {
	pdf         PDFGenerator
	packager    Packager
	mileageRate decimal.Decimal
	concurrency int

	// now is the date printed for statuses that are not final yet
	now func() time.Time
}

func NewService(config Config, pdf PDFGenerator, packager Packager) *Service {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		pdf:         pdf,
		packager:    packager,
		mileageRate: config.MileageRate,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// ClaimPDF renders the report of a single claim in any status.
func (s *Service) ClaimPDF(ctx context.Context, c claim.Claim) (bookkeeping.File, error) {
	if c.Status == nil {
		return bookkeeping.File{}, corruptClaim(c)
	}

	data, err := s.renderPDF(ctx, c)
	if err != nil {
		return bookkeeping.File{}, err
	}

	return bookkeeping.File{
		Filename:    report.PDFFilename(c),
		ContentType: constants.ContentTypePDF,
		Data:        data,
	}, nil
}

// ClaimExport writes the bookkeeping export of an approved or paid claim. Paid
// claims also get their PDF bundled.
func (s *Service) ClaimExport(ctx context.Context, c claim.Claim) (bookkeeping.File, error) {
	if c.Status == nil {
		return bookkeeping.File{}, corruptClaim(c)
	}
	switch c.Status.(type) {
	case claim.Approved, claim.Paid:
	default:
		return bookkeeping.File{}, statusMismatch(c, "approved or paid")
	}

	var pdf *bookkeeping.PDF
	if claim.IsPaid(c.Status) {
		data, err := s.renderPDF(ctx, c)
		if err != nil {
			return bookkeeping.File{}, err
		}
		pdf = &bookkeeping.PDF{Filename: report.PDFFilename(c), Data: data}
	}

	return s.pack(ctx, []bookkeeping.Info{bookkeeping.InfoFromClaim(c, s.mileageRate, pdf)})
}

// BatchExport writes one export for several paid claims. PDFs are rendered
// concurrently; the export keeps the order of claims.
func (s *Service) BatchExport(ctx context.Context, claims []claim.Claim) (bookkeeping.File, error) {
	if len(claims) == 0 {
		return bookkeeping.File{}, api.NewAppError(errors.New("no entries selected"), api.ErrorInvalidEntryID, api.CategoryUser)
	}
	for _, c := range claims {
		if c.Status == nil {
			return bookkeeping.File{}, corruptClaim(c)
		}
		if !claim.IsPaid(c.Status) {
			return bookkeeping.File{}, statusMismatch(c, "paid")
		}
	}

	pdfs := make([][]byte, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range claims {
		g.Go(func() error {
			data, err := s.renderPDF(gctx, c)
			if err != nil {
				return err
			}
			pdfs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return bookkeeping.File{}, err
	}

	infos := make([]bookkeeping.Info, len(claims))
	for i, c := range claims {
		infos[i] = bookkeeping.InfoFromClaim(c, s.mileageRate, &bookkeeping.PDF{
			Filename: report.PDFFilename(c),
			Data:     pdfs[i],
		})
	}

	log.WithField("entries", len(claims)).Info("Exporting paid entries")
	return s.pack(ctx, infos)
}

func (s *Service) renderPDF(ctx context.Context, c claim.Claim) ([]byte, error) {
	data, err := s.pdf.Generate(ctx, c, s.now())
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	log.WithError(err).WithField("claim_id", c.ID).Error("PDF generation failed")

	key := api.ErrorPDFGeneration
	var compressionErr *report.CompressionError
	if errors.As(err, &compressionErr) {
		key = api.ErrorPDFCompression
	}
	appErr := api.NewAppError(err, key, api.CategoryInternal)
	appErr.Extras = map[string]interface{}{"entry_id": c.ID}
	return nil, appErr
}

func (s *Service) pack(ctx context.Context, infos []bookkeeping.Info) (bookkeeping.File, error) {
	f, err := s.packager.Package(ctx, infos)
	if err != nil {
		if ctx.Err() != nil {
			return bookkeeping.File{}, err
		}
		log.WithError(err).Error("Bookkeeping export failed")
		return bookkeeping.File{}, api.NewAppError(err, api.ErrorCSVGeneration, api.CategoryInternal)
	}
	return f, nil
}

func statusMismatch(c claim.Claim, want string) *api.AppError {
	err := fmt.Errorf("entry %s has status %s, must be %s", c.ID, c.Status.Name(), want)
	appErr := api.NewAppError(err, api.ErrorClaimStatusMismatch, api.CategoryUser)
	appErr.Extras = map[string]interface{}{"entry_id": c.ID, "status": c.Status.Name()}
	return appErr
}

func corruptClaim(c claim.Claim) *api.AppError {
	return api.NewAppError(fmt.Errorf("entry %s has no status", c.ID), api.ErrorClaimCorrupt, api.CategoryInternal)
}

// SetLogLevel sets the logging level for the export package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// AddHook registers hook on the logger of the export package
func AddHook(hook logrus.Hook) {
	log.AddHook(hook)
}
