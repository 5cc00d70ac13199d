// Package raw is the low-level PDF object model written by the incremental
// writer and produced when source objects are copied out of a decoded document.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is implemented by every PDF object in this package.
type Object interface {
	Type() string
	IsIndirect() bool
}
