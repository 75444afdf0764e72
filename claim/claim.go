package claim

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Claim is one reimbursement request with its expense items and mileages,
// hydrated by the repository.
type Claim struct {
	ID             string
	Name           string
	IBAN           string
	GovID          string // empty when the payee has no government identifier on file
	Title          string
	SubmissionDate time.Time
	Status         Status
	Archived       bool
	Items          []Item
	Mileages       []Mileage
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName replaces every character outside [a-zA-Z0-9_-] with an underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// HasGovID reports whether the payee government identifier is present.
func (c Claim) HasGovID() bool {
	return c.GovID != ""
}

// Item is an expense line backed by receipts.
type Item struct {
	ID          string
	Date        time.Time
	Description string
	Account     string
	Attachments []Attachment
}

// Price is the sum of the values of all attachments that count towards the total.
func (i Item) Price() decimal.Decimal {
	total := decimal.Zero
	for _, att := range i.Attachments {
		if att.Counts() {
			total = total.Add(att.Value.Decimal)
		}
	}
	return total
}

// Mileage is a distance-based reimbursement line.
type Mileage struct {
	ID          string
	Date        time.Time
	Description string
	Route       string
	Distance    decimal.Decimal
	PlateNo     string
	Account     string
}

// Price returns distance × rate.
func (m Mileage) Price(rate decimal.Decimal) decimal.Decimal {
	return m.Distance.Mul(rate)
}

// Attachment is an uploaded receipt file linked to an item.
type Attachment struct {
	ID           string
	FileID       string
	Filename     string
	Value        decimal.NullDecimal
	IsNotReceipt bool
}

// Counts reports whether the attachment value contributes to prices and totals.
func (a Attachment) Counts() bool {
	return a.Value.Valid && !a.IsNotReceipt
}
