package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/pgf"
)

func init() {
	rootCmd.AddCommand(newCatsCmd())
	rootCmd.AddCommand(newFunsCmd())
	rootCmd.AddCommand(newAddCatCmd())
	rootCmd.AddCommand(newAddFunCmd())
}

// openGrammar opens the store at path and wraps its root as a grammar.
func openGrammar(path string) (*pgf.Grammar, error) {
	s, err := openStore(path)
	if err != nil {
		return nil, err
	}
	g, err := pgf.Open(s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return g, nil
}

func newCatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cats <store>",
		Short: "List the categories of a grammar",
		Long: `The cats command lists the abstract categories of the grammar in a store,
in name order.

Example:
  ngfctl cats foods.ngf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCats(args)
		},
	}
}

func runCats(args []string) error {
	g, err := openGrammar(args[0])
	if err != nil {
		return err
	}
	defer g.Close()

	var cats []pgf.Category
	err = g.Read(func(sc *db.Scope) error {
		for c := range g.IterCategories(sc) {
			cats = append(cats, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cats)
	}
	for _, c := range cats {
		printInfo("%s\n", c.Name)
	}
	return nil
}

func newFunsCmd() *cobra.Command {
	var cat string
	cmd := &cobra.Command{
		Use:   "funs <store>",
		Short: "List the functions of a grammar",
		Long: `The funs command lists the abstract functions of the grammar in a store
with their types, in name order. With --cat only functions producing that
category are listed.

Example:
  ngfctl funs foods.ngf
  ngfctl funs foods.ngf --cat Item`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuns(args, cat)
		},
	}
	cmd.Flags().StringVar(&cat, "cat", "", "Only list functions whose result is this category")
	return cmd
}

func runFuns(args []string, cat string) error {
	g, err := openGrammar(args[0])
	if err != nil {
		return err
	}
	defer g.Close()

	var funs []pgf.Function
	err = g.Read(func(sc *db.Scope) error {
		seq := g.IterFunctions(sc)
		if cat != "" {
			seq = g.IterFunctionsByCat(sc, cat)
		}
		for f := range seq {
			funs = append(funs, f)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(funs)
	}
	for _, f := range funs {
		printInfo("%s\n", f)
	}
	return nil
}

func newAddCatCmd() *cobra.Command {
	var prob float64
	cmd := &cobra.Command{
		Use:   "add-cat <store> <name>",
		Short: "Declare a category",
		Long: `The add-cat command declares a new abstract category and syncs the store.

Example:
  ngfctl add-cat foods.ngf Comment`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddCat(cmd.Context(), args, prob)
		},
	}
	cmd.Flags().Float64Var(&prob, "prob", 0, "Probability of the category")
	return cmd
}

func runAddCat(ctx context.Context, args []string, prob float64) error {
	g, err := openGrammar(args[0])
	if err != nil {
		return err
	}
	defer g.Close()

	err = g.Write(func(sc *db.Scope) error {
		return g.AddCategory(sc, args[1], prob)
	})
	if err != nil {
		return err
	}
	if err := g.Sync(contextOrBackground(ctx)); err != nil {
		return err
	}
	printVerbose("Added category %s\n", args[1])
	return nil
}

func newAddFunCmd() *cobra.Command {
	var prob float64
	cmd := &cobra.Command{
		Use:   "add-fun <store> <name> <type>",
		Short: "Declare a function",
		Long: `The add-fun command declares a new abstract function and syncs the store.
The type lists argument categories and the result category separated by
"->". Every category must already be declared.

Example:
  ngfctl add-fun foods.ngf Pred "Item -> Quality -> Comment"
  ngfctl add-fun foods.ngf Wine Kind`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddFun(cmd.Context(), args, prob)
		},
	}
	cmd.Flags().Float64Var(&prob, "prob", 0, "Probability of the function")
	return cmd
}

func runAddFun(ctx context.Context, args []string, prob float64) error {
	argCats, cat := parseType(args[2])

	g, err := openGrammar(args[0])
	if err != nil {
		return err
	}
	defer g.Close()

	err = g.Write(func(sc *db.Scope) error {
		return g.AddFunction(sc, args[1], argCats, cat, prob)
	})
	if err != nil {
		return err
	}
	if err := g.Sync(contextOrBackground(ctx)); err != nil {
		return err
	}
	printVerbose("Added function %s\n", args[1])
	return nil
}

// parseType splits "A -> B -> C" into the arguments [A B] and result C.
func parseType(s string) (args []string, cat string) {
	parts := strings.Split(s, "->")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
