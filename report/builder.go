package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kulumasiina/attachment"
	"kulumasiina/claim"
)

// AttachmentResolver turns stored attachments into embeddable payloads. The
// result must have the same length and order as atts.
type AttachmentResolver interface {
	NormalizeAll(ctx context.Context, atts []claim.Attachment) []attachment.Resolved
}

// NumberedAttachment is an attachment with its claim-wide number and payload.
type NumberedAttachment struct {
	Number     int
	Attachment claim.Attachment
	Resolved   attachment.Resolved
}

// Label is the caption printed on every page of the attachment.
func (a NumberedAttachment) Label() string {
	return AttachmentLabel(a.Number, a.Attachment)
}

// IsPDF reports whether the attachment is spliced in by the merger rather
// than rendered as a page.
func (a NumberedAttachment) IsPDF() bool {
	return a.Resolved.Kind == attachment.KindPDF
}

// RenderedPart is one claim line with its resolved attachments.
type RenderedPart struct {
	Date        time.Time
	Description string
	Price       decimal.Decimal
	IsMileage   bool
	Attachments []NumberedAttachment
}

// AttachmentNumbers lists the numbers of attachments that resolved to a file.
func (p RenderedPart) AttachmentNumbers() []int {
	var numbers []int
	for _, att := range p.Attachments {
		if att.Resolved.Kind != attachment.KindUnresolved {
			numbers = append(numbers, att.Number)
		}
	}
	return numbers
}

// Parts is the output of the builder.
type Parts struct {
	Parts []RenderedPart
	Total decimal.Decimal

	// PageAttachments are rendered as one page each, in number order.
	PageAttachments []NumberedAttachment

	// PDFAttachments are spliced in by the merger, in the order the builder
	// met them. The merger depends on this order.
	PDFAttachments []NumberedAttachment
}

// Builder assembles the parts of a claim report.
type Builder struct {
	Resolver    AttachmentResolver
	MileageRate decimal.Decimal
}

// Build resolves all attachments of c and numbers them 1..N in item then
// attachment order. Items come before mileages, both in stored order.
func (b *Builder) Build(ctx context.Context, c claim.Claim) (Parts, error) {
	var all []claim.Attachment
	for _, item := range c.Items {
		all = append(all, item.Attachments...)
	}
	resolved := b.Resolver.NormalizeAll(ctx, all)
	if len(resolved) != len(all) {
		return Parts{}, fmt.Errorf("resolver returned %d payloads for %d attachments", len(resolved), len(all))
	}
	if err := ctx.Err(); err != nil {
		return Parts{}, err
	}

	parts := Parts{Total: decimal.Zero}
	number := 0

	for _, item := range c.Items {
		part := RenderedPart{
			Date:        item.Date,
			Description: item.Description,
			Price:       item.Price(),
		}
		for _, att := range item.Attachments {
			na := NumberedAttachment{
				Number:     number + 1,
				Attachment: att,
				Resolved:   resolved[number],
			}
			number++

			part.Attachments = append(part.Attachments, na)
			if na.IsPDF() {
				parts.PDFAttachments = append(parts.PDFAttachments, na)
			} else {
				parts.PageAttachments = append(parts.PageAttachments, na)
			}
		}
		parts.Parts = append(parts.Parts, part)
		parts.Total = parts.Total.Add(part.Price)
	}

	for _, m := range c.Mileages {
		part := RenderedPart{
			Date:        m.Date,
			Description: MileageDescription(m),
			Price:       m.Price(b.MileageRate),
			IsMileage:   true,
		}
		parts.Parts = append(parts.Parts, part)
		parts.Total = parts.Total.Add(part.Price)
	}

	return parts, nil
}

// MileageDescription embeds route, distance and plate number into the line text.
func MileageDescription(m claim.Mileage) string {
	lines := []string{
		m.Description,
		"Route: " + m.Route,
		fmt.Sprintf("Distance: %s km", m.Distance.String()),
		"Plate number: " + m.PlateNo,
	}
	return strings.Join(lines, "\n")
}

// AttachmentLabel returns "Attachment N" with the value appended when it counts
// towards the total.
func AttachmentLabel(number int, att claim.Attachment) string {
	if att.Counts() {
		return fmt.Sprintf("Attachment %d: %s", number, FormatMoney(att.Value.Decimal))
	}
	return fmt.Sprintf("Attachment %d", number)
}

// FormatMoney renders an amount with two decimals and the euro sign.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}
