package bookkeeping

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"kulumasiina/claim"
	"kulumasiina/internal/constants"
)

var errNoEntries = errors.New("no entries to export")

// zipModified keeps archives reproducible for identical input.
var zipModified = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Package merges infos, writes the CSV and decides the export shape: a bare
// CSV when no PDF is involved, otherwise a ZIP holding the CSV followed by
// every merged PDF.
func (c *Composer) Package(ctx context.Context, infos []Info) (File, error) {
	if len(infos) == 0 {
		return File{}, errNoEntries
	}

	merged, err := Merge(ctx, infos)
	if err != nil {
		return File{}, err
	}
	csv := c.ComposeCSV(merged)

	first := infos[0]
	date := first.SubmissionDate.Format(constants.ISODateFormat)
	documentName := fmt.Sprintf("%s-%s-%s", claim.SanitizeName(first.Name), date, first.EntryID)

	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.EntryID
	}
	multiName := fmt.Sprintf("%s-entries-%s", date, strings.Join(ids, "-"))

	name := multiName
	if len(infos) == 1 {
		name = documentName
	}

	var pdfs []*PDF
	for _, info := range merged {
		if info.PDF != nil {
			pdfs = append(pdfs, info.PDF)
		}
	}

	if len(pdfs) == 0 {
		return File{
			Filename:    name + ".csv",
			ContentType: constants.ContentTypeCSV,
			Data:        []byte(csv),
		}, nil
	}

	data, err := writeZip(multiName+".csv", csv, pdfs)
	if err != nil {
		return File{}, fmt.Errorf("error writing export archive: %w", err)
	}

	log.Debugf("Packaged %d entries with %d PDFs into %s.zip", len(infos), len(pdfs), name)

	return File{
		Filename:    name + ".zip",
		ContentType: constants.ContentTypeZIP,
		Data:        data,
	}, nil
}

func writeZip(csvName, csv string, pdfs []*PDF) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	writeFile := func(name string, content []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: zipModified,
		})
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	}

	if err := writeFile(csvName, []byte(csv)); err != nil {
		return nil, err
	}
	for _, pdf := range pdfs {
		if err := writeFile(pdf.Filename, pdf.Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
