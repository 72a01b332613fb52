// Command depcheck verifies that optional modules are only imported from
// files a build tag can drop.
//
// Each rule names a module and the tag setting that must exclude every
// importer: building with -tags nopdf must compile no file importing the
// PDF library, and building without -tags gcp must compile no file
// importing the GCS client.
//
// Usage:
//
//	go run ./tools/depcheck [-root <module-root>]
package main

import (
	"flag"
	"fmt"
	"go/build/constraint"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// rule requires files importing Module to be excluded when Tag is Set.
type rule struct {
	Module string
	Tag    string
	Set    bool
}

var rules = []rule{
	{Module: "github.com/ledongthuc/pdf", Tag: "nopdf", Set: true},
	{Module: "golang.org/x/net/html", Tag: "nohtml", Set: true},
	{Module: "cloud.google.com/go/storage", Tag: "gcp", Set: false},
	{Module: "google.golang.org/api", Tag: "gcp", Set: false},
}

func main() {
	root := flag.String("root", ".", "Module root directory")
	flag.Parse()
	os.Exit(run(*root, os.Stdout, os.Stderr))
}

func run(root string, stdout, stderr io.Writer) int {
	violations, err := check(root, rules)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 2
	}
	for _, v := range violations {
		_, _ = fmt.Fprintln(stdout, "DEPENDENCY VIOLATION:", v)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n%d violation(s) found\n", len(violations))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "optional dependencies are isolated behind build tags")
	return 0
}

// check walks non-test Go files under root and reports every import of
// a ruled module from a file that stays in the build when it should not.
func check(root string, rules []rule) ([]string, error) {
	var violations []string
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly|parser.ParseComments)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		var expr constraint.Expr
		for _, group := range f.Comments {
			if group.Pos() > f.Package {
				break
			}
			for _, c := range group.List {
				if constraint.IsGoBuild(c.Text) {
					if expr, err = constraint.Parse(c.Text); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
			}
		}

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			for _, r := range rules {
				if importPath != r.Module && !strings.HasPrefix(importPath, r.Module+"/") {
					continue
				}
				if expr != nil && !builds(expr, r) {
					continue
				}
				rel, _ := filepath.Rel(root, path)
				violations = append(violations, fmt.Sprintf("%s:%d imports %q but builds with %s",
					filepath.ToSlash(rel), fset.Position(imp.Pos()).Line, importPath, tagSetting(r)))
			}
		}
		return nil
	})
	return violations, err
}

// builds reports whether a file under expr can be compiled with r's tag
// setting, trying the remaining tags all off and all on.
func builds(expr constraint.Expr, r rule) bool {
	for _, others := range []bool{false, true} {
		if expr.Eval(func(tag string) bool {
			if tag == r.Tag {
				return r.Set
			}
			return others
		}) {
			return true
		}
	}
	return false
}

func tagSetting(r rule) string {
	if r.Set {
		return "-tags " + r.Tag
	}
	return "no " + r.Tag + " tag"
}
