package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kulumasiina/claim"
)

// ErrClaimNotFound is returned when no entry has the requested id
var ErrClaimNotFound = errors.New("entry not found")

// EntryRecord represents the schema of the entries table
type EntryRecord struct {
	ID             string     `gorm:"primaryKey;size:36"`
	Name           string     `gorm:"size:255;not null"`
	IBAN           string     `gorm:"column:iban;size:64;not null"`
	GovID          string     `gorm:"column:gov_id;size:32"`
	Title          string     `gorm:"size:1024;not null"`
	SubmissionDate time.Time  `gorm:"not null;index"`
	Status         string     `gorm:"size:16;not null;index"`
	ApprovalDate   *time.Time // Set for approved and paid entries
	ApprovalNote   *string    `gorm:"size:1024"`
	PaidDate       *time.Time
	RejectionDate  *time.Time
	Archived       bool `gorm:"not null;default:false;index"`

	Items    []ItemRecord    `gorm:"foreignKey:EntryID"`
	Mileages []MileageRecord `gorm:"foreignKey:EntryID"`
}

func (EntryRecord) TableName() string { return "entries" }

// ItemRecord represents the schema of the items table
type ItemRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	EntryID     string    `gorm:"size:36;not null;index"`
	Position    int       `gorm:"not null"` // Order within the entry
	Date        time.Time `gorm:"not null"`
	Description string    `gorm:"size:4096;not null"`
	Account     string    `gorm:"size:32"`

	Attachments []AttachmentRecord `gorm:"foreignKey:ItemID"`
}

func (ItemRecord) TableName() string { return "items" }

// AttachmentRecord represents the schema of the attachments table
type AttachmentRecord struct {
	ID           string              `gorm:"primaryKey;size:36"`
	ItemID       string              `gorm:"size:36;not null;index"`
	Position     int                 `gorm:"not null"`
	FileID       string              `gorm:"size:255;not null"` // Key in the file store
	Filename     string              `gorm:"size:255;not null"`
	Value        decimal.NullDecimal `gorm:"type:text"`
	IsNotReceipt bool                `gorm:"not null;default:false"`
}

func (AttachmentRecord) TableName() string { return "attachments" }

// MileageRecord represents the schema of the mileages table
type MileageRecord struct {
	ID          string          `gorm:"primaryKey;size:36"`
	EntryID     string          `gorm:"size:36;not null;index"`
	Position    int             `gorm:"not null"`
	Date        time.Time       `gorm:"not null"`
	Description string          `gorm:"size:4096;not null"`
	Route       string          `gorm:"size:1024;not null"`
	Distance    decimal.Decimal `gorm:"type:text;not null"`
	PlateNo     string          `gorm:"size:32"`
	Account     string          `gorm:"size:32"`
}

func (MileageRecord) TableName() string { return "mileages" }

// InitializeDB opens the SQLite database at path and migrates the schema
func InitializeDB(path string) *gorm.DB {
	db, err := openDB(path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func openDB(path string) (*gorm.DB, error) {
	// Ensure db directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(&EntryRecord{}, &ItemRecord{}, &AttachmentRecord{}, &MileageRecord{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return db, nil
}

// ClaimRepository loads and stores fully hydrated claims
type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (r *ClaimRepository) hydrated(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", byPosition).
		Preload("Items.Attachments", byPosition).
		Preload("Mileages", byPosition)
}

// FindClaim returns the entry with the given id
func (r *ClaimRepository) FindClaim(ctx context.Context, id string) (claim.Claim, error) {
	var rec EntryRecord
	err := r.hydrated(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return claim.Claim{}, fmt.Errorf("%w: %s", ErrClaimNotFound, id)
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("error loading entry %s: %w", id, err)
	}
	return recordToClaim(rec)
}

// FindClaims returns the entries in the order of ids, and the ids that do not exist
func (r *ClaimRepository) FindClaims(ctx context.Context, ids []string) ([]claim.Claim, []string, error) {
	var recs []EntryRecord
	if err := r.hydrated(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, nil, fmt.Errorf("error loading entries: %w", err)
	}

	byID := make(map[string]EntryRecord, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	var claims []claim.Claim
	var missing []string
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		c, err := recordToClaim(rec)
		if err != nil {
			return nil, nil, err
		}
		claims = append(claims, c)
	}
	return claims, missing, nil
}

// ClaimsByStatus returns the entries with the given status that are not
// archived, oldest first
func (r *ClaimRepository) ClaimsByStatus(ctx context.Context, status string) ([]claim.Claim, error) {
	var recs []EntryRecord
	err := r.hydrated(ctx).
		Where("status = ? AND archived = ?", status, false).
		Order("submission_date").Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("error loading %s entries: %w", status, err)
	}

	claims := make([]claim.Claim, 0, len(recs))
	for _, rec := range recs {
		c, err := recordToClaim(rec)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// SaveClaim inserts or replaces an entry with its lines. Missing ids are generated.
func (r *ClaimRepository) SaveClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	c = assignIDs(c)
	rec := claimToRecord(c)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteEntries(tx, []string{c.ID}); err != nil {
			return err
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return claim.Claim{}, fmt.Errorf("error saving entry %s: %w", c.ID, err)
	}
	return c, nil
}

// DeleteArchivedBefore removes archived entries submitted before cutoff and
// returns the file ids of their attachments
func (r *ClaimRepository) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var fileIDs []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&EntryRecord{}).
			Where("archived = ? AND submission_date < ?", true, cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		err = tx.Model(&AttachmentRecord{}).
			Where("item_id IN (?)", tx.Model(&ItemRecord{}).Select("id").Where("entry_id IN ?", ids)).
			Pluck("file_id", &fileIDs).Error
		if err != nil {
			return err
		}

		log.Debugf("Deleting %d archived entries", len(ids))
		return deleteEntries(tx, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting archived entries: %w", err)
	}
	return fileIDs, nil
}

func deleteEntries(tx *gorm.DB, ids []string) error {
	itemIDs := tx.Model(&ItemRecord{}).Select("id").Where("entry_id IN ?", ids)
	if err := tx.Where("item_id IN (?)", itemIDs).Delete(&AttachmentRecord{}).Error; err != nil {
		return err
	}
	if err := tx.Where("entry_id IN ?", ids).Delete(&ItemRecord{}).Error; err != nil {
		return err
	}
	if err := tx.Where("entry_id IN ?", ids).Delete(&MileageRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&EntryRecord{}).Error
}

func assignIDs(c claim.Claim) claim.Claim {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	items := make([]claim.Item, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		atts := make([]claim.Attachment, len(item.Attachments))
		for j, att := range item.Attachments {
			if att.ID == "" {
				att.ID = uuid.NewString()
			}
			atts[j] = att
		}
		item.Attachments = atts
		items[i] = item
	}
	c.Items = items

	mileages := make([]claim.Mileage, len(c.Mileages))
	for i, m := range c.Mileages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		mileages[i] = m
	}
	c.Mileages = mileages

	return c
}

func claimToRecord(c claim.Claim) EntryRecord {
	status, approvalDate, approvalNote, paidDate, rejectionDate := claim.StatusColumns(c.Status)

	rec := EntryRecord{
		ID:             c.ID,
		Name:           c.Name,
		IBAN:           c.IBAN,
		GovID:          c.GovID,
		Title:          c.Title,
		SubmissionDate: c.SubmissionDate,
		Status:         status,
		ApprovalDate:   approvalDate,
		ApprovalNote:   approvalNote,
		PaidDate:       paidDate,
		RejectionDate:  rejectionDate,
		Archived:       c.Archived,
	}

	for i, item := range c.Items {
		itemRec := ItemRecord{
			ID:          item.ID,
			EntryID:     c.ID,
			Position:    i,
			Date:        item.Date,
			Description: item.Description,
			Account:     item.Account,
		}
		for j, att := range item.Attachments {
			itemRec.Attachments = append(itemRec.Attachments, AttachmentRecord{
				ID:           att.ID,
				ItemID:       item.ID,
				Position:     j,
				FileID:       att.FileID,
				Filename:     att.Filename,
				Value:        att.Value,
				IsNotReceipt: att.IsNotReceipt,
			})
		}
		rec.Items = append(rec.Items, itemRec)
	}

	for i, m := range c.Mileages {
		rec.Mileages = append(rec.Mileages, MileageRecord{
			ID:          m.ID,
			EntryID:     c.ID,
			Position:    i,
			Date:        m.Date,
			Description: m.Description,
			Route:       m.Route,
			Distance:    m.Distance,
			PlateNo:     m.PlateNo,
			Account:     m.Account,
		})
	}

	return rec
}

func recordToClaim(rec EntryRecord) (claim.Claim, error) {
	status, err := claim.NewStatus(rec.Status, rec.ApprovalDate, rec.ApprovalNote, rec.PaidDate, rec.RejectionDate)
	if err != nil {
		return claim.Claim{}, fmt.Errorf("entry %s: %w", rec.ID, err)
	}

	c := claim.Claim{
		ID:             rec.ID,
		Name:           rec.Name,
		IBAN:           rec.IBAN,
		GovID:          rec.GovID,
		Title:          rec.Title,
		SubmissionDate: rec.SubmissionDate,
		Status:         status,
		Archived:       rec.Archived,
	}

	for _, itemRec := range rec.Items {
		item := claim.Item{
			ID:          itemRec.ID,
			Date:        itemRec.Date,
			Description: itemRec.Description,
			Account:     itemRec.Account,
		}
		for _, att := range itemRec.Attachments {
			item.Attachments = append(item.Attachments, claim.Attachment{
				ID:           att.ID,
				FileID:       att.FileID,
				Filename:     att.Filename,
				Value:        att.Value,
				IsNotReceipt: att.IsNotReceipt,
			})
		}
		c.Items = append(c.Items, item)
	}

	for _, m := range rec.Mileages {
		c.Mileages = append(c.Mileages, claim.Mileage{
			ID:          m.ID,
			Date:        m.Date,
			Description: m.Description,
			Route:       m.Route,
			Distance:    m.Distance,
			PlateNo:     m.PlateNo,
			Account:     m.Account,
		})
	}

	return c, nil
}
