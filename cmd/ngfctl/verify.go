package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ngfkit/db"
	"github.com/joshuapare/ngfkit/pgf"
)

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	var showStats bool
	cmd := &cobra.Command{
		Use:   "verify <store>",
		Short: "Check heap and grammar structure",
		Long: `The verify command walks every heap block of a store, checking that the
blocks tile the heap, that free blocks are coalesced and indexed, and that
no allocated blocks overlap. If the root is a grammar its namespaces are
checked for ordering and balance.

Example:
  ngfctl verify foods.ngf
  ngfctl verify foods.ngf --stats`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args, showStats)
		},
	}
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print allocator statistics")
	return cmd
}

type verifyResult struct {
	Path            string   `json:"path"`
	OK              bool     `json:"ok"`
	Blocks          int      `json:"blocks"`
	AllocatedBlocks int      `json:"allocated_blocks"`
	FreeBlocks      int      `json:"free_blocks"`
	Problems        []string `json:"problems,omitempty"`
}

func runVerify(args []string, showStats bool) error {
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	res := verifyResult{Path: args[0]}
	report, verr := s.Verify()
	if report != nil {
		res.Blocks = report.Blocks
		res.AllocatedBlocks = report.AllocatedBlocks
		res.FreeBlocks = report.FreeBlocks
		res.Problems = report.Problems
	}
	if verr == nil {
		if hdr, err := s.Header(); err == nil && hdr.Root != 0 {
			g, err := pgf.Open(s)
			if err == nil {
				err = g.Read(func(sc *db.Scope) error { return g.Check(sc) })
			}
			if err != nil {
				res.Problems = append(res.Problems, err.Error())
			}
		}
	} else if report == nil {
		return verr
	}
	res.OK = len(res.Problems) == 0

	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printInfo("\nVerification of %s:\n", res.Path)
		printInfo("  Blocks: %d (%d allocated, %d free)\n", res.Blocks, res.AllocatedBlocks, res.FreeBlocks)
		for _, p := range res.Problems {
			printInfo("  ✗ %s\n", p)
		}
		if res.OK {
			printInfo("  ✓ Structure valid\n")
		}
	}

	if showStats && !jsonOut {
		st, err := s.Stats()
		if err != nil {
			return err
		}
		printInfo("\nAllocator:\n")
		st.Alloc.Print(stdout)
	}

	if !res.OK {
		return fmt.Errorf("%d problem(s) found", len(res.Problems))
	}
	return nil
}
