// Package pgf keeps a compiled grammar inside an ngf store.
//
// A grammar is a graph of fixed-size records allocated in the store heap
// and linked by db.Ref values: a Root holding the format version, global
// flags and the Abstract syntax, whose categories and functions live in
// weight-balanced Namespace trees keyed by Text.
//
// Three entry points produce a *Grammar:
//
//	ReadPGF   parse a .pgf file into a transient store
//	BootNGF   parse a .pgf file into a new .ngf file and sync it
//	ReadNGF   open (or create) an .ngf file, seeding an empty grammar
//
// The binary .pgf decoder is supplied by the caller as a Parser. Queries
// and builders take the *db.Scope they run under:
//
//	err := g.Read(func(sc *db.Scope) error {
//		for c := range g.IterCategories(sc) {
//			fmt.Println(c.Name)
//		}
//		return nil
//	})
//
// Failures can be flattened into the three-way Exn form with ToExn.
package pgf
