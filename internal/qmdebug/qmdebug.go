// Package qmdebug pretty-prints Query Model graphs for diagnostics,
// the way sqldef's test suite used k0kubun/pp to dump AST diffs when
// a generator test failed.
package qmdebug

import (
	"github.com/k0kubun/pp/v3"

	"github.com/opensafely-core/ehrql-go/qm"
)

var printer = pp.New()

func init() {
	printer.SetColoringEnabled(false)
}

// Sprint renders n's Go struct shape, including every nested node.
func Sprint(n qm.Node) string {
	return printer.Sprint(n)
}

// Dump returns Sprint(n) followed by a line holding its structural
// hash.
func Dump(n qm.Node) string {
	return Sprint(n) + "\nhash: " + qm.Hash(n) + "\n"
}
