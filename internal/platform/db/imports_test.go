package db

import (
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"
)

// Domain stores import this package, so it must not import them back.
func TestPackageDoesNotImportDomain(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", nil, parser.ImportsOnly)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, pkg := range pkgs {
		for name, file := range pkg.Files {
			if strings.HasSuffix(name, "_test.go") {
				continue
			}
			for _, spec := range file.Imports {
				path, _ := strconv.Unquote(spec.Path.Value)
				if strings.HasPrefix(path, "notifycsc/internal/domain/") {
					t.Fatalf("%s imports %s", name, path)
				}
			}
		}
	}
}
