package pgf

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/joshuapare/ngfkit/db"
)

// Text is a length-prefixed UTF-8 string in the heap. Size bytes of NFC
// text follow the header in the same block.
type Text struct {
	Size uint64
}

const textHeader = 8

// NewText stores s, normalised to NFC, and returns its reference.
func NewText(sc *db.Scope, s string) (db.Ref[Text], error) {
	s = norm.NFC.String(s)
	r, err := db.MallocSize[Text](sc, textHeader+uint64(len(s)))
	if err != nil {
		return r, err
	}
	db.Deref(sc, r).Size = uint64(len(s))
	copy(db.Bytes(sc, r, textHeader+uint64(len(s)))[textHeader:], s)
	return r, nil
}

// TextString copies the text r names out of the heap.
func TextString(sc *db.Scope, r db.Ref[Text]) string {
	return string(textBytes(sc, r))
}

// textBytes returns the text r names as a view into the mapping.
func textBytes(sc *db.Scope, r db.Ref[Text]) []byte {
	n := db.Load(sc, r).Size
	return db.View(sc, r, textHeader+n)[textHeader:]
}

// compareText orders key against the stored text r bytewise.
func compareText(sc *db.Scope, key string, r db.Ref[Text]) int {
	return strings.Compare(key, string(textBytes(sc, r)))
}
