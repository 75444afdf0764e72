package bookkeeping

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"kulumasiina/claim"
)

func init() {
	api.DisableConfigDir()
}

// NormalizeKey removes every whitespace character from s.
func NormalizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// SameIdentity reports whether a and b pay out to the same person. A missing
// GovID compares equal to an empty one.
func SameIdentity(a, b Info) bool {
	return NormalizeKey(a.IBAN) == NormalizeKey(b.IBAN) &&
		NormalizeKey(a.GovID) == NormalizeKey(b.GovID)
}

// Merge folds infos of the same payee together. The first info of each
// identity absorbs the later ones, in input order. infos is not modified.
func Merge(ctx context.Context, infos []Info) ([]Info, error) {
	var merged []Info

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found := false
		for i := range merged {
			if !SameIdentity(merged[i], info) {
				continue
			}
			combined, err := mergeTwo(merged[i], info)
			if err != nil {
				return nil, err
			}
			merged[i] = combined
			found = true
			break
		}
		if !found {
			merged = append(merged, copyInfo(info))
		}
	}

	return merged, nil
}

func copyInfo(info Info) Info {
	info.Rows = append([]Row(nil), info.Rows...)
	return info
}

func mergeTwo(a, b Info) (Info, error) {
	out := copyInfo(a)
	out.Rows = append(out.Rows, b.Rows...)

	switch {
	case a.PDF != nil && b.PDF != nil:
		data, err := appendPDF(a.PDF.Data, b.PDF.Data)
		if err != nil {
			return Info{}, fmt.Errorf("error merging PDFs of entries %s and %s: %w", a.EntryID, b.EntryID, err)
		}
		ids := []string{a.EntryID, b.EntryID}
		sort.Strings(ids)
		out.PDF = &PDF{
			Filename: fmt.Sprintf("%s-%s.pdf", claim.SanitizeName(a.Name), strings.Join(ids, "-")),
			Data:     data,
		}
	case b.PDF != nil:
		out.PDF = b.PDF
	}

	if b.SubmissionDate.Before(a.SubmissionDate) {
		out.SubmissionDate = b.SubmissionDate
	}
	out.EntryID = a.EntryID + b.EntryID

	log.Debugf("Merged bookkeeping entry %s into %s", b.EntryID, a.EntryID)
	return out, nil
}

// appendPDF returns a document with the pages of second after those of first.
func appendPDF(first, second []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	readers := []io.ReadSeeker{bytes.NewReader(first), bytes.NewReader(second)}
	if err := api.MergeRaw(readers, &buf, false, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
