package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kulumasiina/claim"
)

func newTestRepository(t *testing.T) *ClaimRepository {
	t.Helper()
	db, err := openDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewClaimRepository(db)
}

var testDay = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

func sampleClaim(status claim.Status) claim.Claim {
	return claim.Claim{
		Name:           "Matti Meikäläinen",
		IBAN:           "FI21 1234 5600 0007 85",
		GovID:          "010190-123A",
		Title:          "Sitsit",
		SubmissionDate: testDay,
		Status:         status,
		Items: []claim.Item{
			{
				Date:        testDay,
				Description: "First",
				Account:     "1234",
				Attachments: []claim.Attachment{
					{FileID: "f1", Filename: "a.jpg", Value: decimal.NewNullDecimal(decimal.RequireFromString("12.50"))},
					{FileID: "f2", Filename: "b.pdf", IsNotReceipt: true},
				},
			},
			{Date: testDay, Description: "Second"},
			{Date: testDay, Description: "Third"},
		},
		Mileages: []claim.Mileage{
			{Date: testDay, Description: "Trip", Route: "A - B", Distance: decimal.NewFromInt(40), PlateNo: "ABC-1"},
		},
	}
}

func TestSaveAndFindClaim(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.SaveClaim(ctx, sampleClaim(claim.Paid{ApprovalDate: testDay, Note: "ok", PaidDate: testDay}))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	found, err := repo.FindClaim(ctx, saved.ID)
	require.NoError(t, err)

	assert.Equal(t, "Matti Meikäläinen", found.Name)
	assert.Equal(t, claim.StatusPaid, found.Status.Name())
	require.Len(t, found.Items, 3)
	assert.Equal(t, []string{"First", "Second", "Third"}, []string{
		found.Items[0].Description, found.Items[1].Description, found.Items[2].Description,
	})
	require.Len(t, found.Items[0].Attachments, 2)
	assert.Equal(t, "f1", found.Items[0].Attachments[0].FileID)
	assert.True(t, found.Items[0].Attachments[0].Value.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.False(t, found.Items[0].Attachments[1].Value.Valid)
	assert.True(t, found.Items[0].Attachments[1].IsNotReceipt)
	require.Len(t, found.Mileages, 1)
	assert.Equal(t, "40", found.Mileages[0].Distance.String())
}

func TestSaveClaimReplacesLines(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)

	saved.Items = saved.Items[:1]
	saved.Mileages = nil
	saved.Status = claim.Approved{Date: testDay, Note: "board"}
	_, err = repo.SaveClaim(ctx, saved)
	require.NoError(t, err)

	found, err := repo.FindClaim(ctx, saved.ID)
	require.NoError(t, err)
	assert.Len(t, found.Items, 1)
	assert.Empty(t, found.Mileages)
	approved, ok := found.Status.(claim.Approved)
	require.True(t, ok)
	assert.True(t, approved.Date.Equal(testDay))
	assert.Equal(t, "board", approved.Note)
}

func TestFindClaimNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.FindClaim(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestFindClaims(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)
	b, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)

	claims, missing, err := repo.FindClaims(ctx, []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, b.ID, claims[0].ID)
	assert.Equal(t, a.ID, claims[1].ID)
	assert.Equal(t, []string{"missing"}, missing)
}

func TestClaimsByStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)
	paid, err := repo.SaveClaim(ctx, sampleClaim(claim.Paid{ApprovalDate: testDay, Note: "ok", PaidDate: testDay}))
	require.NoError(t, err)
	archived := sampleClaim(claim.Paid{ApprovalDate: testDay, Note: "ok", PaidDate: testDay})
	archived.Archived = true
	_, err = repo.SaveClaim(ctx, archived)
	require.NoError(t, err)

	claims, err := repo.ClaimsByStatus(ctx, claim.StatusPaid)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, paid.ID, claims[0].ID)
}

func TestCorruptStatusIsReported(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)
	require.NoError(t, repo.db.Model(&EntryRecord{}).Where("id = ?", saved.ID).Update("status", "approved").Error)

	_, err = repo.FindClaim(ctx, saved.ID)
	assert.ErrorIs(t, err, claim.ErrInvalidStatus)
}

func TestDeleteArchivedBefore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	old := sampleClaim(claim.Submitted{})
	old.Archived = true
	old, err := repo.SaveClaim(ctx, old)
	require.NoError(t, err)

	recent := sampleClaim(claim.Submitted{})
	recent.Archived = true
	recent.SubmissionDate = testDay.AddDate(1, 0, 0)
	recent.Items[0].Attachments[0].FileID = "recent"
	recent, err = repo.SaveClaim(ctx, recent)
	require.NoError(t, err)

	kept, err := repo.SaveClaim(ctx, sampleClaim(claim.Submitted{}))
	require.NoError(t, err)

	fileIDs, err := repo.DeleteArchivedBefore(ctx, testDay.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f1", "f2"}, fileIDs)

	_, err = repo.FindClaim(ctx, old.ID)
	assert.ErrorIs(t, err, ErrClaimNotFound)
	_, err = repo.FindClaim(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = repo.FindClaim(ctx, kept.ID)
	assert.NoError(t, err)

	var orphans int64
	require.NoError(t, repo.db.Model(&AttachmentRecord{}).Where("file_id = ?", "f1").Count(&orphans).Error)
	assert.Equal(t, int64(1), orphans, "only the attachment of the kept entry remains")
}
