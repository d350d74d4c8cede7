package vm

import (
	"github.com/josharian/intern"

	"github.com/bytelox/bytelox/debug"
)

//go:generate stringer -type=ObjKind
type ObjKind int

const (
	OStr ObjKind = iota
)

// Obj is a heap-allocated runtime object. Objects are shared by pointer; the
// VM keeps every object it has seen in a root list so lifetimes are bounded
// by the VM's.
type Obj struct {
	Kind ObjKind
	str  string
}

func newObjStr(s string) *Obj { return &Obj{Kind: OStr, str: intern.String(s)} }

func (o *Obj) IsStr() bool { return o.Kind == OStr }

func (o *Obj) AsStr() (res string, ok bool) {
	if !o.IsStr() {
		return
	}
	return o.str, true
}

func (o *Obj) AsStrUnsafe() string {
	debug.Assertf(o.IsStr(), "called AsStrUnsafe on a %v Obj", o.Kind)
	return o.str
}

func (o *Obj) Stringify() string {
	switch o.Kind {
	case OStr:
		return o.str
	default:
		panic("cannot stringify unknown object kind")
	}
}

func objEq(a, b *Obj) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case OStr:
		return a.str == b.str
	default:
		return false
	}
}
