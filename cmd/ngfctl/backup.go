package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ngfkit/backup"
)

func init() {
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newRestoreCmd())
}

func newBackupCmd() *cobra.Command {
	var (
		codec string
		level int
		rate  int64
	)
	cmd := &cobra.Command{
		Use:   "backup <store> <output>",
		Short: "Write a compressed backup of a store",
		Long: `The backup command copies a store's header and heap to a compressed
file while holding a reader scope, so the copy is a consistent state.

Example:
  ngfctl backup foods.ngf foods.ngfb
  ngfctl backup foods.ngf foods.ngfb --codec lz4 --rate 10485760`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := backup.ParseCodec(codec)
			if err != nil {
				return err
			}
			opts := &backup.Options{Codec: c, Level: level, BytesPerSecond: rate}
			return runBackup(contextOrBackground(cmd.Context()), args, opts)
		},
	}
	cmd.Flags().StringVar(&codec, "codec", "zstd", "Compression codec: none, zstd or lz4")
	cmd.Flags().IntVar(&level, "level", 0, "Compression level (0 for the codec default)")
	cmd.Flags().Int64Var(&rate, "rate", 0, "Limit in bytes per second (0 for unlimited)")
	return cmd
}

func runBackup(ctx context.Context, args []string, opts *backup.Options) (err error) {
	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(args[1])
		}
	}()

	w := bufio.NewWriter(f)
	res, err := backup.Write(ctx, s, w, opts)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Backed up %s to %s: %s image, %s stored (%s)\n",
		args[0], args[1], formatBytes(uint64(res.ImageSize)), formatBytes(uint64(res.Stored)), res.Codec)
	return nil
}

func newRestoreCmd() *cobra.Command {
	var rate int64
	cmd := &cobra.Command{
		Use:   "restore <backup> <store>",
		Short: "Restore a backup into a new store",
		Long: `The restore command decodes a backup into a new .ngf file, which must not
exist, and verifies the result before reporting success.

Example:
  ngfctl restore foods.ngfb foods-copy.ngf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &backup.Options{BytesPerSecond: rate, Store: storeOptions()}
			return runRestore(contextOrBackground(cmd.Context()), args, opts)
		},
	}
	cmd.Flags().Int64Var(&rate, "rate", 0, "Limit in bytes per second (0 for unlimited)")
	return cmd
}

func runRestore(ctx context.Context, args []string, opts *backup.Options) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	res, err := backup.Restore(ctx, bufio.NewReader(f), args[1], opts)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	printInfo("Restored %s to %s: %s image (%s)\n",
		args[0], args[1], formatBytes(uint64(res.ImageSize)), res.Codec)
	return nil
}
