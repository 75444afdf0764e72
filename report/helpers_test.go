package report

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
	"testing"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kulumasiina/attachment"
	"kulumasiina/claim"
)

// fakeResolver serves payloads by file id; unknown ids are unresolved.
type fakeResolver struct {
	payloads map[string]attachment.Resolved
	calls    int
}

func (f *fakeResolver) NormalizeAll(ctx context.Context, atts []claim.Attachment) []attachment.Resolved {
	f.calls++
	out := make([]attachment.Resolved, len(atts))
	for i, att := range atts {
		if r, ok := f.payloads[att.FileID]; ok {
			out[i] = r
			continue
		}
		out[i] = attachment.Resolved{Kind: attachment.KindUnresolved, Data: []byte{}}
	}
	return out
}

// squarePDF returns a document with one square page per size, so pages can be
// told apart by their dimensions after merging.
func squarePDF(t *testing.T, sizes ...float64) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for _, s := range sizes {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: s, Ht: s})
		pdf.Text(10, 30, "fixture")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 20, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func countPages(t *testing.T, doc []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(doc), newConfig())
	require.NoError(t, err)
	return n
}

// pageWidths returns the rounded width of every page.
func pageWidths(t *testing.T, doc []byte) []int {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(doc), newConfig())
	require.NoError(t, err)
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width + 0.5)
	}
	return widths
}

// streamContents returns the decoded content of every stream object in doc.
// Streams with filters that cannot be decoded are skipped.
func streamContents(t *testing.T, doc []byte) []string {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(doc), newConfig())
	require.NoError(t, err)

	var contents []string
	for _, entry := range ctx.Table {
		if entry == nil || entry.Object == nil {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if err := sd.Decode(); err != nil {
			continue
		}
		contents = append(contents, string(sd.Content))
	}
	return contents
}

type textOp struct {
	Y    float64
	Text string
}

var textOpPattern = regexp.MustCompile(`BT ([-\d.]+) ([-\d.]+) Td \((.*?)\) Tj ET`)

// textOps lists the single-line text operations fpdf wrote, with their
// baseline measured from the bottom of the page.
func textOps(t *testing.T, doc []byte) []textOp {
	t.Helper()
	var ops []textOp
	for _, content := range streamContents(t, doc) {
		for _, m := range textOpPattern.FindAllStringSubmatch(content, -1) {
			y, err := strconv.ParseFloat(m[2], 64)
			require.NoError(t, err)
			ops = append(ops, textOp{Y: y, Text: m[3]})
		}
	}
	return ops
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func testClaim() claim.Claim {
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	return claim.Claim{
		ID:             "c1",
		Name:           "Matti Meikäläinen",
		IBAN:           "FI21 1234 5600 0007 85",
		Title:          "Sitsit 2025",
		SubmissionDate: day,
		Status:         claim.Submitted{},
		Items: []claim.Item{
			{
				ID:          "i1",
				Date:        day,
				Description: "Groceries",
				Attachments: []claim.Attachment{
					{ID: "a1", FileID: "img", Filename: "receipt.jpg", Value: money("12.50")},
					{ID: "a2", FileID: "pdf", Filename: "invoice.pdf", Value: money("30")},
				},
			},
			{
				ID:          "i2",
				Date:        day.AddDate(0, 0, 1),
				Description: "Decorations",
				Attachments: []claim.Attachment{
					{ID: "a3", FileID: "missing", Filename: "lost.png", Value: money("5")},
				},
			},
		},
		Mileages: []claim.Mileage{
			{
				ID:          "m1",
				Date:        day,
				Description: "Trip to Otaniemi",
				Route:       "Helsinki - Espoo",
				Distance:    decimal.NewFromInt(40),
				PlateNo:     "ABC-123",
			},
		},
	}
}
