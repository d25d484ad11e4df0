package optimization

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// newSolveGroup returns an errgroup for independent frontier solves, capped
// at the number of available CPUs. Each solve writes its own result slot, so
// ordering is preserved regardless of scheduling.
func newSolveGroup() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	return g
}
