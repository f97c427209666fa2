package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/pgf"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init <store>",
		Short: "Create a store holding an empty grammar",
		Long: `The init command creates a new .ngf file whose root is an empty grammar
of the current format version. The file must not exist.

Example:
  ngfctl init foods.ngf --abstract Foods`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), args, name)
		},
	}
	cmd.Flags().StringVar(&name, "abstract", "", "Name of the abstract syntax")
	return cmd
}

func runInit(ctx context.Context, args []string, name string) error {
	ctx = contextOrBackground(ctx)
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	g, err := pgf.ReadNGF(ctx, path, storeOptions())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer g.Close()

	if name != "" {
		err = g.Write(func(sc *db.Scope) error {
			return g.SetAbstractName(sc, name)
		})
		if err == nil {
			err = g.Sync(ctx)
		}
		if err != nil {
			return err
		}
	}

	printInfo("Created %s\n", path)
	return nil
}
