package pgf

import (
	"github.com/joshuapare/ngfkit/db"
)

// Format version written into new grammars.
const (
	MajorVersion = 2
	MinorVersion = 0
)

// Root is the record the store root points at.
type Root struct {
	Major    uint16
	Minor    uint16
	_        uint32
	Flags    db.Ref[Namespace] // global flags, values are literals
	Abstract Abstract
}

// Abstract is the abstract syntax of a grammar.
type Abstract struct {
	Name  db.Ref[Text]
	Flags db.Ref[Namespace] // abstract flags, values are literals
	Funs  db.Ref[Namespace] // values are AbsFun
	Cats  db.Ref[Namespace] // values are AbsCat
}

// AbsCat is an abstract category.
type AbsCat struct {
	Name db.Ref[Text]
	Prob float64
}

// AbsFun is an abstract function.
type AbsFun struct {
	Name  db.Ref[Text]
	Type  db.Ref[Type]
	Arity uint32
	_     uint32
	Prob  float64
}

// Type is a function type: argument categories followed by the result
// category.
type Type struct {
	Cat  db.Ref[Text]
	Args db.Ref[Hypo]
}

// Hypo is one argument of a Type, linked in order.
type Hypo struct {
	Cat  db.Ref[Text]
	Next db.Ref[Hypo]
}

// NewRoot allocates an empty grammar with the given abstract name. It is
// what parsers start from and what ReadNGF seeds a fresh file with.
func NewRoot(sc *db.Scope, name string) (db.Ref[Root], error) {
	n, err := NewText(sc, name)
	if err != nil {
		return db.Ref[Root]{}, err
	}
	r, err := db.Malloc[Root](sc)
	if err != nil {
		_ = db.Free(sc, n)
		return r, err
	}
	root := db.Deref(sc, r)
	root.Major = MajorVersion
	root.Minor = MinorVersion
	root.Abstract.Name = n
	return r, nil
}

// newType stores the type args -> cat. On failure everything it allocated
// is released.
func newType(sc *db.Scope, args []string, cat string) (db.Ref[Type], error) {
	t, err := db.Malloc[Type](sc)
	if err != nil {
		return t, err
	}
	if err := fillType(sc, t, args, cat); err != nil {
		_ = freeType(sc, t)
		return db.Ref[Type]{}, err
	}
	return t, nil
}

func fillType(sc *db.Scope, t db.Ref[Type], args []string, cat string) error {
	c, err := NewText(sc, cat)
	if err != nil {
		return err
	}
	db.Deref(sc, t).Cat = c

	// Prepend back to front so Args always heads a complete list.
	for i := len(args) - 1; i >= 0; i-- {
		a, err := NewText(sc, args[i])
		if err != nil {
			return err
		}
		h, err := db.Malloc[Hypo](sc)
		if err != nil {
			_ = db.Free(sc, a)
			return err
		}
		hn := db.Deref(sc, h)
		hn.Cat = a
		hn.Next = db.Deref(sc, t).Args
		db.Deref(sc, t).Args = h
	}
	return nil
}

// freeType releases t with its texts and argument list.
func freeType(sc *db.Scope, t db.Ref[Type]) error {
	if t.IsNull() {
		return nil
	}
	ty := *db.Deref(sc, t)
	for h := ty.Args; !h.IsNull(); {
		hn := *db.Deref(sc, h)
		if err := db.Free(sc, hn.Cat); err != nil {
			return err
		}
		if err := db.Free(sc, h); err != nil {
			return err
		}
		h = hn.Next
	}
	if !ty.Cat.IsNull() {
		if err := db.Free(sc, ty.Cat); err != nil {
			return err
		}
	}
	return db.Free(sc, t)
}
