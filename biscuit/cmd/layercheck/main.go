// Command layercheck statically verifies this module's own import
// graph respects its layering: mem and coremap (the lowest layers) must
// never import proc or syscall (the highest), enforcing spec.md §9's
// "back-references are non-owning, reconfirmed on use" design note as a
// runnable check rather than only a code-review convention. Grounded on
// the teacher's own use of golang.org/x/tools/go/pointer for whole-
// program analysis (present in teacher's go.mod but deprecated
// upstream); this uses that package's supported sibling,
// golang.org/x/tools/go/packages, to load the import graph instead.
package main

import (
	"fmt"
	"os"

	"golang.org/x/tools/go/packages"
)

// forbidden maps a lower-layer package's import-path suffix to the
// higher-layer suffixes it must never import.
var forbidden = map[string][]string{
	"biscuit/src/mem":     {"biscuit/src/proc", "biscuit/src/syscall", "biscuit/src/vm"},
	"biscuit/src/coremap": {"biscuit/src/proc", "biscuit/src/syscall", "biscuit/src/vm"},
	"biscuit/src/critsec": {"biscuit/src/proc", "biscuit/src/syscall", "biscuit/src/sched"},
	"biscuit/src/sleepq":  {"biscuit/src/proc", "biscuit/src/syscall", "biscuit/src/sched"},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "layercheck:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, "github.com/ilovaca/ece344/biscuit/...")
	if err != nil {
		return err
	}
	if packages.PrintErrors(pkgs) > 0 {
		return fmt.Errorf("package load errors")
	}

	violations := 0
	for _, pkg := range pkgs {
		for lowerSuffix, banned := range forbidden {
			if !hasSuffix(pkg.PkgPath, lowerSuffix) {
				continue
			}
			for imp := range pkg.Imports {
				for _, bannedSuffix := range banned {
					if hasSuffix(imp, bannedSuffix) {
						fmt.Printf("layering violation: %s imports %s\n", pkg.PkgPath, imp)
						violations++
					}
				}
			}
		}
	}
	if violations > 0 {
		return fmt.Errorf("%d layering violation(s)", violations)
	}
	fmt.Println("layercheck: ok")
	return nil
}

func hasSuffix(path, suffix string) bool {
	if len(path) < len(suffix) {
		return false
	}
	return path[len(path)-len(suffix):] == suffix
}
