package report

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kulumasiina/attachment"
	"kulumasiina/claim"
)

func TestStatusLines(t *testing.T) {
	approved := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   claim.Status
		expected []string
	}{
		{
			name:     "Submitted",
			status:   claim.Submitted{},
			expected: []string{"Awaiting approval (as of 1.4.2025)"},
		},
		{
			name:   "Approved",
			status: claim.Approved{Date: approved, Note: "Board 3/2025"},
			expected: []string{
				"Approved 5.3.2025, reason: Board 3/2025",
				"Not yet paid (as of 1.4.2025)",
			},
		},
		{
			name:   "Paid",
			status: claim.Paid{ApprovalDate: approved, Note: "Board 3/2025", PaidDate: paid},
			expected: []string{
				"Approved 5.3.2025, reason: Board 3/2025",
				"Paid 12.3.2025",
			},
		},
		{
			name:     "Denied",
			status:   claim.Denied{RejectionDate: approved},
			expected: []string{"Denied (5.3.2025)"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StatusLines(tc.status, asOf))
		})
	}
}

func TestHeaderTitle(t *testing.T) {
	r := &Renderer{OrganizationName: "FYYSIKKOKILTA RY"}
	assert.Equal(t, "FYYSIKKOKILTA RY - Expense reimbursement form", r.HeaderTitle(claim.Claim{}))
	assert.Equal(t, "FYYSIKKOKILTA RY - Mileage reimbursement form", r.HeaderTitle(claim.Claim{GovID: "010190-123A"}))
}

func TestTableRows(t *testing.T) {
	resolver := &fakeResolver{payloads: map[string]attachment.Resolved{
		"img": {Kind: attachment.KindImage, Data: []byte("png")},
		"pdf": {Kind: attachment.KindPDF, Data: []byte("%PDF")},
	}}
	rate := decimal.RequireFromString("0.25")
	parts, err := (&Builder{Resolver: resolver, MileageRate: rate}).Build(context.Background(), testClaim())
	require.NoError(t, err)

	rows := (&Renderer{MileageRate: rate}).TableRows(parts)
	require.Len(t, rows, 3)

	assert.Equal(t, TableRow{Date: "5.3.2025", Description: "Groceries", Reference: "1, 2", Price: "42.50 €"}, rows[0])
	assert.Equal(t, "-", rows[1].Reference)
	assert.Equal(t, "0.25 €/km", rows[2].Reference)
	assert.Equal(t, "10.00 €", rows[2].Price)
	assert.Equal(t, "57.5", RenderedTotal(parts).String())
}

func TestFitImage(t *testing.T) {
	tests := []struct {
		name         string
		w, h         float64
		wantW, wantH float64
	}{
		{name: "Wide", w: 2000, h: 1000, wantW: 515, wantH: 257.5},
		{name: "Tall", w: 700, h: 1400, wantW: 350, wantH: 700},
		{name: "Small is scaled up", w: 100, h: 100, wantW: 515, wantH: 515},
		{name: "Empty", w: 0, h: 10, wantW: 0, wantH: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := FitImage(tc.w, tc.h, 515, 700)
			assert.InDelta(t, tc.wantW, w, 0.001)
			assert.InDelta(t, tc.wantH, h, 0.001)
		})
	}
}

func TestRenderPageCount(t *testing.T) {
	resolver := &fakeResolver{payloads: map[string]attachment.Resolved{
		"img": {Kind: attachment.KindImage, Data: pngImage(t, 60, 40)},
		"pdf": {Kind: attachment.KindPDF, Data: squarePDF(t, 300)},
	}}
	rate := decimal.RequireFromString("0.25")
	c := testClaim()
	parts, err := (&Builder{Resolver: resolver, MileageRate: rate}).Build(context.Background(), c)
	require.NoError(t, err)

	r := &Renderer{OrganizationName: "FYYSIKKOKILTA RY", MileageRate: rate}
	doc, err := r.Render(context.Background(), c, parts, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, doc.CoverPages)
	assert.Equal(t, 2, doc.AttachmentPages, "image page and placeholder page")
	assert.Equal(t, 3, countPages(t, doc.Data))
}

func TestRenderCoverOverflow(t *testing.T) {
	c := claim.Claim{
		ID:             "long",
		Name:           "Test",
		Title:          "Many lines",
		SubmissionDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:         claim.Submitted{},
		GovID:          "010190-123A",
	}
	for i := 0; i < 40; i++ {
		c.Items = append(c.Items, claim.Item{
			Date:        c.SubmissionDate,
			Description: fmt.Sprintf("Line %d with a description long enough to wrap onto a second line of the table", i),
			Attachments: []claim.Attachment{{FileID: fmt.Sprintf("f%d", i), Value: money("1")}},
		})
	}

	parts, err := (&Builder{Resolver: &fakeResolver{}}).Build(context.Background(), c)
	require.NoError(t, err)

	doc, err := (&Renderer{}).Render(context.Background(), c, parts, time.Now())
	require.NoError(t, err)

	assert.Greater(t, doc.CoverPages, 1)
	assert.Equal(t, 40, doc.AttachmentPages)
	assert.Equal(t, doc.CoverPages+40, countPages(t, doc.Data))
}

func TestRenderImageOnlyPageCount(t *testing.T) {
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	resolver := &fakeResolver{payloads: map[string]attachment.Resolved{}}
	c := claim.Claim{ID: "img", Name: "Test", SubmissionDate: day, Status: claim.Submitted{}}

	perItem := []int{2, 1, 3}
	total := 0
	for i, k := range perItem {
		item := claim.Item{Date: day, Description: fmt.Sprintf("Item %d", i)}
		for j := 0; j < k; j++ {
			fileID := fmt.Sprintf("f%d-%d", i, j)
			resolver.payloads[fileID] = attachment.Resolved{Kind: attachment.KindImage, Data: pngImage(t, 30+10*j, 50)}
			item.Attachments = append(item.Attachments, claim.Attachment{FileID: fileID, Value: money("2")})
		}
		c.Items = append(c.Items, item)
		total += k
	}

	parts, err := (&Builder{Resolver: resolver}).Build(context.Background(), c)
	require.NoError(t, err)
	require.Empty(t, parts.PDFAttachments)

	doc, err := (&Renderer{}).Render(context.Background(), c, parts, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, doc.CoverPages)
	assert.Equal(t, total, doc.AttachmentPages)
	assert.Equal(t, 1+total, countPages(t, doc.Data))
}

func TestRenderTallRowContinuesOnNextPage(t *testing.T) {
	const words = 500
	c := claim.Claim{
		ID:             "tall",
		Name:           "Test",
		Title:          "Long description",
		SubmissionDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:         claim.Submitted{},
		Items: []claim.Item{{
			Date:        time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Description: strings.TrimSpace(strings.Repeat("receipt ", words)),
		}},
	}

	parts, err := (&Builder{Resolver: &fakeResolver{}}).Build(context.Background(), c)
	require.NoError(t, err)

	doc, err := (&Renderer{}).Render(context.Background(), c, parts, time.Now())
	require.NoError(t, err)
	assert.Greater(t, doc.CoverPages, 2)

	found := 0
	for _, op := range textOps(t, doc.Data) {
		n := strings.Count(op.Text, "receipt")
		if n == 0 {
			continue
		}
		found += n
		assert.GreaterOrEqual(t, op.Y, coverMargin, "text drawn below the bottom margin: %q", op.Text)
	}
	assert.Equal(t, words, found)
}

func TestRenderCancelled(t *testing.T) {
	c := testClaim()
	parts, err := (&Builder{Resolver: &fakeResolver{}}).Build(context.Background(), c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Renderer{}).Render(ctx, c, parts, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
