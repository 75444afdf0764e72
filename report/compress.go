package report

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// CompressionError is returned when a finished document could not be optimized.
type CompressionError struct {
	ClaimID string
	Err     error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("error compressing PDF for claim %s: %v", e.ClaimID, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// Compressor optimizes the merged document. Disabled compressors return the
// input unchanged.
type Compressor struct {
	Enabled bool
}

func (c *Compressor) Compress(claimID string, doc []byte) ([]byte, error) {
	if !c.Enabled {
		return doc, nil
	}

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(doc), &buf, newConfig()); err != nil {
		return nil, &CompressionError{ClaimID: claimID, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &CompressionError{ClaimID: claimID, Err: fmt.Errorf("optimizer produced no output")}
	}

	log.Debugf("Compressed claim %s PDF from %d to %d bytes", claimID, len(doc), buf.Len())
	return buf.Bytes(), nil
}
