package bookkeeping

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kulumasiina/claim"
	"kulumasiina/internal/constants"
)

var log = logrus.New()

const (
	fieldSeparator  = ";"
	recordSeparator = "\n"

	expenseType = "K"
	mileageType = "T"
	currency    = "EUR"
	paymentType = "Tilisiirto"

	maxDescriptionLength = 80
	mileagePrefix        = "Kilometrikorvaus: "
	missingPDFNote       = "Muista lisätä PDFt liitetiedostoina: "
)

// Row is one claim line in accounting shape.
type Row struct {
	UnitPrice   decimal.Decimal
	Description string
	Quantity    decimal.Decimal
	IsMileage   bool
	Account     string
}

// PDF is a rendered companion document.
type PDF struct {
	Filename string
	Data     []byte
}

// Info is one claim, or several merged claims of the same payee, ready to be
// written as CSV records.
type Info struct {
	EntryID        string
	Name           string
	IBAN           string
	GovID          string
	SubmissionDate time.Time
	Rows           []Row
	PDF            *PDF
}

func (i Info) hasExpenses() bool {
	for _, r := range i.Rows {
		if !r.IsMileage {
			return true
		}
	}
	return false
}

func (i Info) hasMileages() bool {
	for _, r := range i.Rows {
		if r.IsMileage {
			return true
		}
	}
	return false
}

// File is an export ready to be sent to the client.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// InfoFromClaim flattens c into rows. pdf may be nil.
func InfoFromClaim(c claim.Claim, mileageRate decimal.Decimal, pdf *PDF) Info {
	info := Info{
		EntryID:        c.ID,
		Name:           c.Name,
		IBAN:           c.IBAN,
		GovID:          c.GovID,
		SubmissionDate: c.SubmissionDate,
		PDF:            pdf,
	}

	for _, item := range c.Items {
		info.Rows = append(info.Rows, Row{
			UnitPrice:   item.Price(),
			Description: item.Description,
			Quantity:    decimal.NewFromInt(1),
			Account:     item.Account,
		})
	}
	for _, m := range c.Mileages {
		info.Rows = append(info.Rows, Row{
			UnitPrice:   mileageRate,
			Description: mileagePrefix + m.Description,
			Quantity:    m.Distance,
			IsMileage:   true,
			Account:     m.Account,
		})
	}

	return info
}

// Composer writes the semicolon separated import format of the accounting
// system. Field positions are fixed; empty fields must stay in place.
type Composer struct {
	MileageProductID string
}

// ComposeCSV writes the records of already merged infos. Lines are joined
// with "\n" without a trailing newline.
func (c *Composer) ComposeCSV(infos []Info) string {
	var lines []string
	for _, info := range infos {
		if info.hasExpenses() {
			lines = append(lines, headerRecord(expenseType, info, ""))
			for _, r := range info.Rows {
				if !r.IsMileage {
					lines = append(lines, rowRecord(r, "", "kpl"))
				}
			}
		}
		if info.hasMileages() {
			lines = append(lines, headerRecord(mileageType, info, NormalizeKey(info.GovID)))
			for _, r := range info.Rows {
				if r.IsMileage {
					lines = append(lines, rowRecord(r, c.MileageProductID, "km"))
				}
			}
		}
	}
	return strings.Join(lines, recordSeparator)
}

func headerRecord(recordType string, info Info, govID string) string {
	date := info.SubmissionDate.Format(constants.DisplayDateFormat)

	notes := ""
	pdfName := ""
	if info.PDF == nil {
		notes = missingPDFNote + info.EntryID
	} else {
		pdfName = info.PDF.Filename
	}

	fields := []string{
		recordType,
		currency,
		"",
		NormalizeKey(info.IBAN),
		govID,
		paymentType,
		info.Name,
		"",
		"0",
		"t",
		"t",
		"0",
		date,
		"",
		date,
		"", "", "", "",
		notes,
		"", "", "", "", "",
		"6",
		"", "",
		"t",
		"", "", "", "",
		pdfName,
	}
	return strings.Join(fields, fieldSeparator)
}

func rowRecord(r Row, productCode, unit string) string {
	fields := []string{
		"",
		description(r.Description),
		productCode,
		r.Quantity.String(),
		unit,
		r.UnitPrice.String(),
		"0",
		"0",
		"",
		"", "", "", "",
		r.Account,
	}
	return strings.Join(fields, fieldSeparator)
}

// description keeps the first 80 characters and flattens newlines.
func description(s string) string {
	runes := []rune(s)
	if len(runes) > maxDescriptionLength {
		runes = runes[:maxDescriptionLength]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}

// SetLogLevel sets the logging level for the bookkeeping package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// AddHook registers hook on the logger of the bookkeeping package
func AddHook(hook logrus.Hook) {
	log.AddHook(hook)
}
