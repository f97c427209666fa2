package pgf

import (
	"fmt"
	"strconv"

	"github.com/joshuapare/ngfkit/db"
)

// Literal tags stored in the low bits of a literal's db.Object.
const (
	LitStr uint8 = iota
	LitInt
	LitFlt
)

// Literal is a decoded literal value: StrLit, IntLit or FltLit.
type Literal interface {
	Tag() uint8
	String() string
}

// StrLit is a string literal.
type StrLit string

// IntLit is an integer literal.
type IntLit int64

// FltLit is a floating-point literal.
type FltLit float64

func (StrLit) Tag() uint8 { return LitStr }
func (IntLit) Tag() uint8 { return LitInt }
func (FltLit) Tag() uint8 { return LitFlt }

func (l StrLit) String() string { return strconv.Quote(string(l)) }
func (l IntLit) String() string { return strconv.FormatInt(int64(l), 10) }
func (l FltLit) String() string { return strconv.FormatFloat(float64(l), 'g', -1, 64) }

type intLit struct{ V int64 }

type fltLit struct{ V float64 }

// EncodeLiteral stores lit in the heap and returns its tagged reference.
func EncodeLiteral(sc *db.Scope, lit Literal) (db.Object, error) {
	switch l := lit.(type) {
	case StrLit:
		r, err := NewText(sc, string(l))
		if err != nil {
			return db.Object{}, err
		}
		return db.Tagged(r, LitStr), nil
	case IntLit:
		r, err := db.Malloc[intLit](sc)
		if err != nil {
			return db.Object{}, err
		}
		db.Deref(sc, r).V = int64(l)
		return db.Tagged(r, LitInt), nil
	case FltLit:
		r, err := db.Malloc[fltLit](sc)
		if err != nil {
			return db.Object{}, err
		}
		db.Deref(sc, r).V = float64(l)
		return db.Tagged(r, LitFlt), nil
	default:
		panic(fmt.Sprintf("pgf: unknown literal type %T", lit))
	}
}

// DecodeLiteral reads the literal o refers to. An unknown tag is a format
// error.
func DecodeLiteral(sc *db.Scope, o db.Object) (Literal, error) {
	if o.IsNull() {
		return nil, db.FormatError("decode literal", "null literal")
	}
	switch tag := db.GetTag(o); tag {
	case LitStr:
		return StrLit(TextString(sc, db.Untagged[Text](o))), nil
	case LitInt:
		return IntLit(db.Load(sc, db.Untagged[intLit](o)).V), nil
	case LitFlt:
		return FltLit(db.Load(sc, db.Untagged[fltLit](o)).V), nil
	default:
		return nil, db.FormatError("decode literal", fmt.Sprintf("unknown literal tag %d", tag))
	}
}
