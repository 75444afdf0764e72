package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrAttachmentOrder is returned when PDF attachments are not in strictly
// increasing number order. Inserting out of order would shift pages that
// were already placed.
var ErrAttachmentOrder = errors.New("PDF attachments are not in increasing number order")

const stampDescription = "fontname:Helvetica-Bold, points:18, position:tl, offset:40 -40, scalefactor:1 abs, rotation:0, fillcolor:#333333, opacity:1"

func init() {
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Merger splices PDF attachments into the base document.
type Merger struct{}

type mergeState struct {
	doc        []byte
	pageOffset int
	lastNumber int
}

// Merge inserts every PDF in pdfs into base so that attachment N lands right
// after attachment N-1. Each page of an inserted PDF is stamped with its
// label first. attachmentPages is the number of rendered attachment pages in
// base; the pages before them are the cover.
func (m *Merger) Merge(ctx context.Context, base []byte, attachmentPages int, pdfs []NumberedAttachment) ([]byte, error) {
	if len(pdfs) == 0 {
		return base, nil
	}

	basePages, err := pageCount(base)
	if err != nil {
		return nil, fmt.Errorf("error reading base document: %w", err)
	}
	overviewPages := basePages - attachmentPages
	if overviewPages < 0 {
		return nil, fmt.Errorf("base document has %d pages but %d attachment pages were rendered", basePages, attachmentPages)
	}

	state := mergeState{doc: base}
	for _, att := range pdfs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state, err = m.step(state, overviewPages, att)
		if err != nil {
			return nil, err
		}
	}

	log.Debugf("Merged %d PDF attachments, %d extra pages", len(pdfs), state.pageOffset)
	return state.doc, nil
}

func (m *Merger) step(state mergeState, overviewPages int, att NumberedAttachment) (mergeState, error) {
	if att.Number <= state.lastNumber {
		return state, fmt.Errorf("%w: attachment %d after %d", ErrAttachmentOrder, att.Number, state.lastNumber)
	}

	stamped, err := stamp(att.Resolved.Data, att.Label())
	if err != nil {
		return state, fmt.Errorf("error stamping attachment %d (%s): %w", att.Number, att.Attachment.ID, err)
	}
	pages, err := pageCount(stamped)
	if err != nil {
		return state, fmt.Errorf("error reading attachment %d (%s): %w", att.Number, att.Attachment.ID, err)
	}
	docPages, err := pageCount(state.doc)
	if err != nil {
		return state, fmt.Errorf("error reading merged document: %w", err)
	}

	at := overviewPages + state.pageOffset + att.Number - 1
	if at > docPages {
		return state, fmt.Errorf("attachment %d would be inserted after page %d of a %d page document", att.Number, at, docPages)
	}

	doc, err := insertPages(state.doc, docPages, at, stamped)
	if err != nil {
		return state, fmt.Errorf("error inserting attachment %d: %w", att.Number, err)
	}

	return mergeState{
		doc:        doc,
		pageOffset: state.pageOffset + pages - 1,
		lastNumber: att.Number,
	}, nil
}

// insertPages returns doc with pages inserted after page at (0 means before
// the first page).
func insertPages(doc []byte, docPages, at int, pages []byte) ([]byte, error) {
	var segments [][]byte
	if at > 0 {
		head, err := trim(doc, fmt.Sprintf("1-%d", at))
		if err != nil {
			return nil, err
		}
		segments = append(segments, head)
	}
	segments = append(segments, pages)
	if at < docPages {
		tail, err := trim(doc, fmt.Sprintf("%d-%d", at+1, docPages))
		if err != nil {
			return nil, err
		}
		segments = append(segments, tail)
	}
	return concat(segments)
}

func concat(segments [][]byte) ([]byte, error) {
	if len(segments) == 1 {
		return segments[0], nil
	}
	readers := make([]io.ReadSeeker, len(segments))
	for i, s := range segments {
		readers[i] = bytes.NewReader(s)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, newConfig()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func trim(doc []byte, selection string) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc), &buf, []string{selection}, newConfig()); err != nil {
		return nil, fmt.Errorf("error selecting pages %s: %w", selection, err)
	}
	return buf.Bytes(), nil
}

// stamp writes label in the top-left corner of every page.
func stamp(doc []byte, label string) ([]byte, error) {
	wm, err := api.TextWatermark(label, stampDescription, true, false, types.POINTS)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &buf, nil, wm, newConfig()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pageCount(doc []byte) (int, error) {
	return api.PageCount(bytes.NewReader(doc), newConfig())
}
