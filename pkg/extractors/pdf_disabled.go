//go:build nopdf

package extractors

const pdfAvailable = false

func readPDF([]byte) (pdfDocument, error) {
	return pdfDocument{}, errDependencyMissing
}
