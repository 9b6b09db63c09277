package input

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// validatePDF checks that data is a structurally valid PDF and returns its
// page count. The bytes go to the model verbatim; validation keeps corrupt
// or truncated uploads from burning a generation on a parse failure.
func validatePDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid PDF: %v", ErrUnsupportedType, err)
	}
	if ctx.PageCount == 0 {
		return 0, fmt.Errorf("%w: PDF has no pages", ErrUnsupportedType)
	}
	return ctx.PageCount, nil
}
