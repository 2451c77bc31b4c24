package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/counselai/counsel/internal/fault"
)

var pdfMagic = []byte("%PDF-")

// ExtractPDF reads a PDF document and returns its plain text. Inputs that do
// not carry the PDF header, or that the parser cannot walk, produce a
// document fault without touching any store.
func ExtractPDF(r io.Reader) (text string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fault.Wrap(fault.KindDocument, "ingest.extract", err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fault.New(fault.KindDocument, "ingest.extract", "input is not a PDF document")
	}

	// The parser panics on some malformed files instead of returning an
	// error, so recover and classify.
	defer func() {
		if p := recover(); p != nil {
			err = fault.New(fault.KindDocument, "ingest.extract", "malformed PDF: %v", p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fault.Wrap(fault.KindDocument, "ingest.extract",
			fmt.Errorf("opening PDF: %w", err))
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fault.Wrap(fault.KindDocument, "ingest.extract",
			fmt.Errorf("extracting text: %w", err))
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fault.Wrap(fault.KindDocument, "ingest.extract", err)
	}
	return sb.String(), nil
}
