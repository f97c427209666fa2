package pgf

import (
	"errors"
	"fmt"
	"iter"

	"golang.org/x/text/unicode/norm"

	"github.com/joshuapare/ngfkit/db"
)

var (
	// ErrUnknownCategory is returned when a function mentions a category the
	// abstract syntax does not declare.
	ErrUnknownCategory = errors.New("pgf: unknown category")
	// ErrDuplicate is returned when a category or function name is taken.
	ErrDuplicate = errors.New("pgf: duplicate name")
)

// Category is a decoded abstract category.
type Category struct {
	Name string
	Prob float64
}

// Function is a decoded abstract function.
type Function struct {
	Name  string
	Args  []string // argument categories
	Cat   string   // result category
	Arity int
	Prob  float64
}

func (f Function) String() string {
	s := f.Name + " :"
	for _, a := range f.Args {
		s += " " + a + " ->"
	}
	return s + " " + f.Cat
}

// root returns the grammar root and panics if sc is bound to another store.
func (g *Grammar) root(sc *db.Scope) db.Ref[Root] {
	if sc.Store() != g.store {
		panic(fmt.Sprintf("pgf: scope on %s used with grammar on %s", sc.Store(), g.store))
	}
	return db.GetRoot[Root](sc)
}

// Version returns the grammar's format version.
func (g *Grammar) Version(sc *db.Scope) (major, minor uint16) {
	r := db.Load(sc, g.root(sc))
	return r.Major, r.Minor
}

// AbstractName returns the name of the abstract syntax.
func (g *Grammar) AbstractName(sc *db.Scope) string {
	return TextString(sc, db.Load(sc, g.root(sc)).Abstract.Name)
}

// SetAbstractName renames the abstract syntax.
func (g *Grammar) SetAbstractName(sc *db.Scope, name string) error {
	return setAbstractName(sc, g.root(sc), name)
}

func setAbstractName(sc *db.Scope, root db.Ref[Root], name string) error {
	t, err := NewText(sc, name)
	if err != nil {
		return err
	}
	abs := &db.Deref(sc, root).Abstract
	old := abs.Name
	abs.Name = t
	if old.IsNull() {
		return nil
	}
	return db.Free(sc, old)
}

// IterCategories yields the categories in name order. The grammar must not
// be modified while iterating.
func (g *Grammar) IterCategories(sc *db.Scope) iter.Seq[Category] {
	return func(yield func(Category) bool) {
		cats := db.Load(sc, g.root(sc)).Abstract.Cats
		nsIter(sc, cats, func(_ db.Ref[Text], v db.Object) bool {
			return yield(decodeCat(sc, v))
		})
	}
}

// IterFunctions yields the functions in name order. The grammar must not be
// modified while iterating.
func (g *Grammar) IterFunctions(sc *db.Scope) iter.Seq[Function] {
	return func(yield func(Function) bool) {
		funs := db.Load(sc, g.root(sc)).Abstract.Funs
		nsIter(sc, funs, func(_ db.Ref[Text], v db.Object) bool {
			return yield(decodeFun(sc, v))
		})
	}
}

// IterFunctionsByCat yields, in name order, the functions whose result
// category is cat.
func (g *Grammar) IterFunctionsByCat(sc *db.Scope, cat string) iter.Seq[Function] {
	cat = norm.NFC.String(cat)
	return func(yield func(Function) bool) {
		funs := db.Load(sc, g.root(sc)).Abstract.Funs
		nsIter(sc, funs, func(_ db.Ref[Text], v db.Object) bool {
			fr := db.Untagged[AbsFun](v)
			ty := db.Load(sc, fr).Type
			if ty.IsNull() || compareText(sc, cat, db.Load(sc, ty).Cat) != 0 {
				return true
			}
			return yield(decodeFun(sc, v))
		})
	}
}

// Category looks up a category by name.
func (g *Grammar) Category(sc *db.Scope, name string) (Category, bool) {
	v, ok := nsLookup(sc, db.Load(sc, g.root(sc)).Abstract.Cats, norm.NFC.String(name))
	if !ok {
		return Category{}, false
	}
	return decodeCat(sc, v), true
}

// Function looks up a function by name.
func (g *Grammar) Function(sc *db.Scope, name string) (Function, bool) {
	v, ok := nsLookup(sc, db.Load(sc, g.root(sc)).Abstract.Funs, norm.NFC.String(name))
	if !ok {
		return Function{}, false
	}
	return decodeFun(sc, v), true
}

// AddCategory declares a category. The name must not be declared already.
func (g *Grammar) AddCategory(sc *db.Scope, name string, prob float64) error {
	return addCategory(sc, g.root(sc), name, prob)
}

func addCategory(sc *db.Scope, root db.Ref[Root], name string, prob float64) error {
	name = norm.NFC.String(name)
	cats := db.Load(sc, root).Abstract.Cats
	if _, ok := nsLookup(sc, cats, name); ok {
		return fmt.Errorf("%w: category %q", ErrDuplicate, name)
	}

	n, err := NewText(sc, name)
	if err != nil {
		return err
	}
	c, err := db.Malloc[AbsCat](sc)
	if err != nil {
		_ = db.Free(sc, n)
		return err
	}
	cn := db.Deref(sc, c)
	cn.Name = n
	cn.Prob = prob

	t, _, _, err := nsInsert(sc, cats, name, db.Tagged(c, 0))
	if err != nil {
		_ = freeCat(sc, db.Tagged(c, 0))
		return err
	}
	db.Deref(sc, root).Abstract.Cats = t
	return nil
}

// AddFunction declares the function name : args... -> cat. Every category
// it mentions must be declared, and the name must be new.
func (g *Grammar) AddFunction(sc *db.Scope, name string, args []string, cat string, prob float64) error {
	return addFunction(sc, g.root(sc), name, args, cat, prob)
}

func addFunction(sc *db.Scope, root db.Ref[Root], name string, args []string, cat string, prob float64) error {
	name = norm.NFC.String(name)
	abs := db.Load(sc, root).Abstract
	if _, ok := nsLookup(sc, abs.Funs, name); ok {
		return fmt.Errorf("%w: function %q", ErrDuplicate, name)
	}
	for _, c := range append([]string{cat}, args...) {
		if _, ok := nsLookup(sc, abs.Cats, norm.NFC.String(c)); !ok {
			return fmt.Errorf("%w: %q in function %q", ErrUnknownCategory, c, name)
		}
	}

	ty, err := newType(sc, args, cat)
	if err != nil {
		return err
	}
	f, err := db.Malloc[AbsFun](sc)
	if err != nil {
		_ = freeType(sc, ty)
		return err
	}
	db.Deref(sc, f).Type = ty
	n, err := NewText(sc, name)
	if err != nil {
		_ = freeFun(sc, db.Tagged(f, 0))
		return err
	}
	fn := db.Deref(sc, f)
	fn.Name = n
	fn.Arity = uint32(len(args))
	fn.Prob = prob

	t, _, _, err := nsInsert(sc, abs.Funs, name, db.Tagged(f, 0))
	if err != nil {
		_ = freeFun(sc, db.Tagged(f, 0))
		return err
	}
	db.Deref(sc, root).Abstract.Funs = t
	return nil
}

// SetFlag sets a global flag, replacing any previous value.
func (g *Grammar) SetFlag(sc *db.Scope, name string, value Literal) error {
	return setFlag(sc, g.root(sc), name, value)
}

func setFlag(sc *db.Scope, root db.Ref[Root], name string, value Literal) error {
	o, err := EncodeLiteral(sc, value)
	if err != nil {
		return err
	}
	t, old, replaced, err := nsInsert(sc, db.Deref(sc, root).Flags, norm.NFC.String(name), o)
	if err != nil {
		_ = sc.FreeObject(o)
		return err
	}
	db.Deref(sc, root).Flags = t
	if replaced {
		return sc.FreeObject(old)
	}
	return nil
}

// Flag returns a global flag.
func (g *Grammar) Flag(sc *db.Scope, name string) (Literal, bool, error) {
	v, ok := nsLookup(sc, db.Load(sc, g.root(sc)).Flags, norm.NFC.String(name))
	if !ok {
		return nil, false, nil
	}
	lit, err := DecodeLiteral(sc, v)
	if err != nil {
		return nil, false, err
	}
	return lit, true, nil
}

// IterFlags yields the global flags in name order. A flag whose value
// cannot be decoded ends the iteration with its error.
func (g *Grammar) IterFlags(sc *db.Scope) iter.Seq2[string, Literal] {
	return func(yield func(string, Literal) bool) {
		flags := db.Load(sc, g.root(sc)).Flags
		nsIter(sc, flags, func(k db.Ref[Text], v db.Object) bool {
			lit, err := DecodeLiteral(sc, v)
			if err != nil {
				return false
			}
			return yield(TextString(sc, k), lit)
		})
	}
}

// Check verifies the ordering and balance of the grammar's namespaces.
func (g *Grammar) Check(sc *db.Scope) error {
	r := db.Load(sc, g.root(sc))
	for _, ns := range []struct {
		name string
		t    db.Ref[Namespace]
	}{
		{"flags", r.Flags},
		{"abstract flags", r.Abstract.Flags},
		{"functions", r.Abstract.Funs},
		{"categories", r.Abstract.Cats},
	} {
		if _, ok := nsCheck(sc, ns.t, nil, nil); !ok {
			return db.FormatError("check grammar", ns.name+" namespace is malformed")
		}
	}
	return nil
}

func decodeCat(sc *db.Scope, v db.Object) Category {
	c := db.Load(sc, db.Untagged[AbsCat](v))
	return Category{Name: TextString(sc, c.Name), Prob: c.Prob}
}

func decodeFun(sc *db.Scope, v db.Object) Function {
	f := db.Load(sc, db.Untagged[AbsFun](v))
	out := Function{Name: TextString(sc, f.Name), Arity: int(f.Arity), Prob: f.Prob}
	if f.Type.IsNull() {
		return out
	}
	ty := db.Load(sc, f.Type)
	out.Cat = TextString(sc, ty.Cat)
	for h := ty.Args; !h.IsNull(); h = db.Load(sc, h).Next {
		out.Args = append(out.Args, TextString(sc, db.Load(sc, h).Cat))
	}
	return out
}

func freeCat(sc *db.Scope, v db.Object) error {
	c := db.Untagged[AbsCat](v)
	if n := db.Deref(sc, c).Name; !n.IsNull() {
		if err := db.Free(sc, n); err != nil {
			return err
		}
	}
	return db.Free(sc, c)
}

func freeFun(sc *db.Scope, v db.Object) error {
	f := db.Untagged[AbsFun](v)
	fn := *db.Deref(sc, f)
	if !fn.Name.IsNull() {
		if err := db.Free(sc, fn.Name); err != nil {
			return err
		}
	}
	if err := freeType(sc, fn.Type); err != nil {
		return err
	}
	return db.Free(sc, f)
}
