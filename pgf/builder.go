package pgf

import (
	"github.com/joshuapare/ngfkit/db"
)

// Builder adds declarations to a grammar root that has not been published
// yet. Parsers use it between NewRoot and returning the root.
type Builder struct {
	sc   *db.Scope
	root db.Ref[Root]
}

// NewBuilder returns a Builder for root. sc must be a writer scope.
func NewBuilder(sc *db.Scope, root db.Ref[Root]) *Builder {
	return &Builder{sc: sc, root: root}
}

// Root returns the root being built.
func (b *Builder) Root() db.Ref[Root] { return b.root }

// SetAbstractName renames the abstract syntax.
func (b *Builder) SetAbstractName(name string) error {
	return setAbstractName(b.sc, b.root, name)
}

// AddCategory declares a category.
func (b *Builder) AddCategory(name string, prob float64) error {
	return addCategory(b.sc, b.root, name, prob)
}

// AddFunction declares the function name : args... -> cat.
func (b *Builder) AddFunction(name string, args []string, cat string, prob float64) error {
	return addFunction(b.sc, b.root, name, args, cat, prob)
}

// SetFlag sets a global flag.
func (b *Builder) SetFlag(name string, value Literal) error {
	return setFlag(b.sc, b.root, name, value)
}
