package pgf_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/pgf"
)

// lineParser reads a line-oriented stand-in for the binary format:
//
//	abstract Foods
//	flag startcat "Comment"
//	cat Item
//	fun Pred : Item Quality -> Comment
type lineParser struct{}

func (lineParser) ReadPGF(sc *db.Scope, r io.Reader) (db.Ref[pgf.Root], error) {
	root, err := pgf.NewRoot(sc, "")
	if err != nil {
		return root, err
	}
	b := pgf.NewBuilder(sc, root)
	s := bufio.NewScanner(r)
	for line := 1; s.Scan(); line++ {
		f := strings.Fields(s.Text())
		if len(f) == 0 {
			continue
		}
		switch {
		case f[0] == "abstract" && len(f) == 2:
			err = b.SetAbstractName(f[1])
		case f[0] == "flag" && len(f) == 3:
			err = b.SetFlag(f[1], parseLiteral(f[2]))
		case f[0] == "cat" && len(f) == 2:
			err = b.AddCategory(f[1], 0)
		case f[0] == "fun" && len(f) >= 4 && f[2] == ":":
			cats := strings.Split(strings.Join(f[3:], " "), "->")
			for i := range cats {
				cats[i] = strings.TrimSpace(cats[i])
			}
			var args []string
			if a := strings.Fields(strings.Join(cats[:len(cats)-1], " ")); len(a) > 0 {
				args = a
			}
			err = b.AddFunction(f[1], args, cats[len(cats)-1], 0)
		default:
			err = fmt.Errorf("line %d: cannot parse %q", line, s.Text())
		}
		if err != nil {
			return root, err
		}
	}
	return root, s.Err()
}

func parseLiteral(s string) pgf.Literal {
	if u, err := strconv.Unquote(s); err == nil {
		return pgf.StrLit(u)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return pgf.IntLit(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return pgf.FltLit(f)
	}
	return pgf.StrLit(s)
}

const foodsSource = `abstract Foods
flag startcat "Comment"
flag version 3
cat Comment
cat Item
cat Kind
cat Quality
fun Pred : Item Quality -> Comment
fun This : Kind -> Item
fun That : Kind -> Item
fun Wine : Kind
fun Cheese : Kind
fun Very : Quality -> Quality
fun Fresh : Quality
`

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grammar.pgf")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func bootFoods(t *testing.T) (*pgf.Grammar, string) {
	t.Helper()
	ngf := filepath.Join(t.TempDir(), "foods.ngf")
	g, err := pgf.BootNGF(context.Background(), writeSource(t, foodsSource), ngf, lineParser{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g, ngf
}

func names[T any](seq iter.Seq[T], name func(T) string) []string {
	var out []string
	for v := range seq {
		out = append(out, name(v))
	}
	return out
}

func catName(c pgf.Category) string { return c.Name }
func funName(f pgf.Function) string { return f.Name }
