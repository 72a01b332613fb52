package extractors

import "errors"

// Go modules behind the optional capabilities.
const (
	pdfModule  = "github.com/ledongthuc/pdf"
	htmlModule = "golang.org/x/net/html"
)

// Dependency describes an optional parsing library and whether this
// binary was built with it.
type Dependency struct {
	Name      string   `json:"name"`
	Module    string   `json:"module"`
	Available bool     `json:"available"`
	UsedBy    []string `json:"used_by"`
}

// Dependencies reports the optional libraries compiled into this build.
// Availability is fixed at build time by the nopdf and nohtml tags.
func Dependencies() []Dependency {
	return []Dependency{
		{Name: "html", Module: htmlModule, Available: htmlAvailable, UsedBy: []string{"eml", "html"}},
		{Name: "pdf", Module: pdfModule, Available: pdfAvailable, UsedBy: []string{"pdf"}},
	}
}

var errDependencyMissing = errors.New("dependency not compiled into this build")
