package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"kulumasiina/attachment"
	"kulumasiina/claim"
	"kulumasiina/internal/constants"
)

const (
	coverMargin      = 50.0
	attachmentMargin = 40.0
	maxImageWidth    = 515.0
	maxImageHeight   = 700.0

	tableHeaderHeight = 30.0
	cellPadding       = 10.0
	cellLineHeight    = 14.0
	minRowHeight      = 35.0
)

var columnShares = [4]float64{0.15, 0.45, 0.20, 0.20}

// RenderedDocument is the base PDF before PDF attachments are merged in.
type RenderedDocument struct {
	Data []byte

	// CoverPages is usually 1, more when the line table overflows.
	CoverPages int

	// AttachmentPages is the number of pages rendered for non-PDF attachments.
	AttachmentPages int
}

// Renderer draws the cover page and the image attachment pages.
type Renderer struct {
	OrganizationName string
	MileageRate      decimal.Decimal
}

type pageWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// Render produces the base PDF: cover page(s) followed by one page per
// attachment in parts.PageAttachments. PDF attachments get no page here.
func (r *Renderer) Render(ctx context.Context, c claim.Claim, parts Parts, asOf time.Time) (RenderedDocument, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(coverMargin, coverMargin, coverMargin)
	pdf.SetAutoPageBreak(false, coverMargin)
	pdf.SetTitle(c.Title, true)
	pdf.SetAuthor(r.OrganizationName, true)

	pw := &pageWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.AddPage()
	r.drawCover(pw, c, parts, asOf)
	coverPages := pdf.PageCount()

	for _, att := range parts.PageAttachments {
		if err := ctx.Err(); err != nil {
			return RenderedDocument{}, err
		}
		pw.drawAttachmentPage(att)
	}

	if pdf.Err() {
		return RenderedDocument{}, fmt.Errorf("error rendering report for claim %s: %w", c.ID, pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return RenderedDocument{}, fmt.Errorf("error writing report for claim %s: %w", c.ID, err)
	}

	return RenderedDocument{
		Data:            buf.Bytes(),
		CoverPages:      coverPages,
		AttachmentPages: len(parts.PageAttachments),
	}, nil
}

// HeaderTitle names the form type.
func (r *Renderer) HeaderTitle(c claim.Claim) string {
	form := "Expense reimbursement form"
	if c.HasGovID() {
		form = "Mileage reimbursement form"
	}
	if r.OrganizationName == "" {
		return form
	}
	return r.OrganizationName + " - " + form
}

// StatusLines renders the lifecycle status block. asOf is the date shown for
// states that may still change.
func StatusLines(s claim.Status, asOf time.Time) []string {
	now := asOf.Format(constants.DisplayDateFormat)
	switch v := s.(type) {
	case claim.Submitted:
		return []string{fmt.Sprintf("Awaiting approval (as of %s)", now)}
	case claim.Approved:
		return []string{
			fmt.Sprintf("Approved %s, reason: %s", v.Date.Format(constants.DisplayDateFormat), v.Note),
			fmt.Sprintf("Not yet paid (as of %s)", now),
		}
	case claim.Paid:
		return []string{
			fmt.Sprintf("Approved %s, reason: %s", v.ApprovalDate.Format(constants.DisplayDateFormat), v.Note),
			fmt.Sprintf("Paid %s", v.PaidDate.Format(constants.DisplayDateFormat)),
		}
	case claim.Denied:
		return []string{fmt.Sprintf("Denied (%s)", v.RejectionDate.Format(constants.DisplayDateFormat))}
	}
	return nil
}

// TableRow is one line of the cover table as text.
type TableRow struct {
	Date        string
	Description string
	Reference   string
	Price       string
}

// TableRows formats parts for the cover table.
func (r *Renderer) TableRows(parts Parts) []TableRow {
	rows := make([]TableRow, 0, len(parts.Parts))
	for _, part := range parts.Parts {
		rows = append(rows, TableRow{
			Date:        part.Date.Format(constants.DisplayDateFormat),
			Description: part.Description,
			Reference:   r.referenceColumn(part),
			Price:       FormatMoney(part.Price),
		})
	}
	return rows
}

func (r *Renderer) referenceColumn(part RenderedPart) string {
	if part.IsMileage {
		return r.MileageRate.String() + " €/km"
	}
	numbers := part.AttachmentNumbers()
	if len(numbers) == 0 {
		return "-"
	}
	strs := make([]string, len(numbers))
	for i, n := range numbers {
		strs[i] = strconv.Itoa(n)
	}
	return strings.Join(strs, ", ")
}

// RenderedTotal sums the prices exactly as they appear in the table.
func RenderedTotal(parts Parts) decimal.Decimal {
	total := decimal.Zero
	for _, part := range parts.Parts {
		total = total.Add(part.Price)
	}
	return total
}

func (r *Renderer) drawCover(pw *pageWriter, c claim.Claim, parts Parts, asOf time.Time) {
	pdf := pw.pdf
	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*coverMargin

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(contentWidth, 28, pw.tr(r.HeaderTitle(c)), "", "L", false)
	pdf.Ln(20)

	pdf.SetFont("Helvetica", "", 15)
	pdf.SetTextColor(51, 51, 51)
	info := []string{
		"Name: " + c.Name,
		"IBAN: " + c.IBAN,
	}
	if c.HasGovID() {
		info = append(info, "Personal identity code: "+c.GovID)
	}
	info = append(info, "Date: "+c.SubmissionDate.Format(constants.DisplayDateFormat))
	info = append(info, StatusLines(c.Status, asOf)...)
	for _, line := range info {
		pdf.MultiCell(contentWidth, 20, pw.tr(line), "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(contentWidth, 17, pw.tr("Reason for reimbursement: "+c.Title), "", "L", false)
	pdf.Ln(30)

	headers := [4]string{"Date", "Description", "Attachments", "Price"}
	if c.HasGovID() {
		headers[2] = "Mileage allowance"
	}

	var widths [4]float64
	for i, share := range columnShares {
		widths[i] = contentWidth * share
	}

	pw.drawTableHeader(headers, widths)
	for i, row := range r.TableRows(parts) {
		pw.drawTableRow(i, [4]string{row.Date, row.Description, row.Reference, row.Price}, widths, headers)
	}
	pw.drawTotalRow(FormatMoney(RenderedTotal(parts)), widths)
}

func (pw *pageWriter) drawTableHeader(headers [4]string, widths [4]float64) {
	pdf := pw.pdf
	x, y := pdf.GetXY()

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(51, 51, 51)
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(x, y, sum(widths[:]), tableHeaderHeight, "F")

	cx := x
	for i, h := range headers {
		align := "L"
		if i == len(headers)-1 {
			align = "R"
		}
		pdf.SetXY(cx+cellPadding, y)
		pdf.CellFormat(widths[i]-2*cellPadding, tableHeaderHeight, pw.tr(h), "", 0, align, false, 0, "")
		cx += widths[i]
	}

	pdf.SetDrawColor(208, 208, 208)
	pdf.SetLineWidth(2)
	pdf.Line(x, y+tableHeaderHeight, x+sum(widths[:]), y+tableHeaderHeight)
	pdf.SetXY(x, y+tableHeaderHeight)
}

func (pw *pageWriter) drawTableRow(index int, cells [4]string, widths [4]float64, headers [4]string) {
	pdf := pw.pdf
	pdf.SetFont("Helvetica", "", 11)

	lines := make([][][]byte, len(cells))
	maxLines := 1
	for i, cell := range cells {
		lines[i] = pdf.SplitLines([]byte(pw.tr(cell)), widths[i]-2*cellPadding)
		if len(lines[i]) > maxLines {
			maxLines = len(lines[i])
		}
	}

	_, pageHeight := pdf.GetPageSize()
	bottom := pageHeight - coverMargin
	freshPage := bottom - coverMargin - tableHeaderHeight

	// A row that fits on a fresh page moves there whole. Taller rows are
	// split by line and continue below a repeated header.
	for first := 0; first < maxLines; {
		remaining := maxLines - first
		fit := int((bottom - pdf.GetY() - 2*cellPadding) / cellLineHeight)
		whole := rowHeight(remaining) <= bottom-pdf.GetY()
		if !whole && (fit < 1 || (first == 0 && rowHeight(maxLines) <= freshPage)) {
			pw.continueTable(headers, widths)
			continue
		}

		count := remaining
		if !whole {
			count = min(fit, remaining)
		}
		pw.drawRowChunk(index, lines, first, count, widths)
		first += count
		if first < maxLines {
			pw.continueTable(headers, widths)
		}
	}
}

func rowHeight(lines int) float64 {
	return max(minRowHeight, float64(lines)*cellLineHeight+2*cellPadding)
}

func (pw *pageWriter) continueTable(headers [4]string, widths [4]float64) {
	pw.pdf.AddPage()
	pw.drawTableHeader(headers, widths)
	pw.pdf.SetFont("Helvetica", "", 11)
}

// drawRowChunk draws lines [first, first+count) of every cell.
func (pw *pageWriter) drawRowChunk(index int, lines [][][]byte, first, count int, widths [4]float64) {
	pdf := pw.pdf
	height := rowHeight(count)

	x, y := pdf.GetXY()
	if index%2 == 1 {
		pdf.SetFillColor(250, 250, 250)
		pdf.Rect(x, y, sum(widths[:]), height, "F")
	}

	pdf.SetTextColor(68, 68, 68)
	cx := x
	for i := range lines {
		align := "L"
		if i == len(lines)-1 {
			align = "R"
		}
		for li := first; li < first+count && li < len(lines[i]); li++ {
			pdf.SetXY(cx+cellPadding, y+cellPadding+float64(li-first)*cellLineHeight)
			pdf.CellFormat(widths[i]-2*cellPadding, cellLineHeight, string(lines[i][li]), "", 0, align, false, 0, "")
		}
		cx += widths[i]
	}

	pdf.SetDrawColor(224, 224, 224)
	pdf.SetLineWidth(1)
	pdf.Line(x, y+height, x+sum(widths[:]), y+height)
	pdf.SetXY(x, y+height)
}

func (pw *pageWriter) drawTotalRow(total string, widths [4]float64) {
	pdf := pw.pdf
	const height = 32.0

	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+height > pageHeight-coverMargin {
		pdf.AddPage()
	}

	x, y := pdf.GetXY()
	labelWidth := widths[0] + widths[1] + widths[2]

	pdf.SetFillColor(232, 232, 232)
	pdf.Rect(x, y, labelWidth+widths[3], height, "F")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(51, 51, 51)

	pdf.SetXY(x+cellPadding, y)
	pdf.CellFormat(labelWidth-2*cellPadding, height, "Total", "", 0, "L", false, 0, "")
	pdf.SetXY(x+labelWidth+cellPadding, y)
	pdf.CellFormat(widths[3]-2*cellPadding, height, pw.tr(total), "", 0, "R", false, 0, "")
	pdf.SetXY(x, y+height)
}

// drawAttachmentPage adds one page with the attachment label and its image
// contained in the image box. Unresolved attachments get a placeholder text
// instead so their number still occupies a page.
func (pw *pageWriter) drawAttachmentPage(att NumberedAttachment) {
	pdf := pw.pdf
	pdf.SetMargins(attachmentMargin, attachmentMargin, attachmentMargin)
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	contentWidth := pageWidth - 2*attachmentMargin

	pdf.SetXY(attachmentMargin, attachmentMargin)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(51, 51, 51)
	pdf.CellFormat(contentWidth, 22, pw.tr(att.Label()), "", 1, "L", false, 0, "")
	pdf.Ln(20)

	top := pdf.GetY()
	boxHeight := min(maxImageHeight, pageHeight-attachmentMargin-top)
	boxWidth := min(maxImageWidth, contentWidth)

	if att.Resolved.Kind != attachment.KindImage {
		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(contentWidth, 16, pw.tr("File could not be loaded: "+att.Attachment.Filename), "", "L", false)
		return
	}

	name := fmt.Sprintf("attachment-%d", att.Number)
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(att.Resolved.Data))
	if info == nil || pdf.Err() {
		return
	}

	w, h := FitImage(info.Width(), info.Height(), boxWidth, boxHeight)
	x := attachmentMargin + (contentWidth-w)/2
	y := top + (boxHeight-h)/2
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
}

// FitImage scales (w, h) to fit inside (maxW, maxH) preserving aspect ratio.
// Images are scaled up as well as down.
func FitImage(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := min(maxW/w, maxH/h)
	return w * scale, h * scale
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
