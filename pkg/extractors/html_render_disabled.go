//go:build nohtml

package extractors

import "io"

const htmlAvailable = false

func renderHTML(io.Reader, string) (renderedPage, error) {
	return renderedPage{}, errDependencyMissing
}
