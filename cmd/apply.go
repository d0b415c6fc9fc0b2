package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var applyCmd = &cobra.Command{
	Use:   "apply <file|->...",
	Short: "Parse chat blocks and merge them into activity records",
	Long:  "Each argument is one block. Blocks are applied concurrently up to apply.max_concurrent_blocks; a failed block does not stop the others.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "apply")
		if err != nil {
			return err
		}
		defer env.Close()

		return applyFiles(ctx, env.Service, args, cfg.Apply.MaxConcurrentBlocks, func(path string, ids []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d item(s) applied\n", path, len(ids))
		}, func(path string) (string, error) {
			return readBlock(cmd.InOrStdin(), path)
		})
	},
}

type blockApplier interface {
	Apply(ctx context.Context, block string) ([]string, error)
}

// applyFiles applies each file as one block with at most concurrency blocks
// in flight. Per-block failures are logged and counted; the returned error
// reports how many blocks failed.
func applyFiles(ctx context.Context, svc blockApplier, paths []string, concurrency int,
	report func(path string, ids []string), read func(path string) (string, error),
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	var (
		succeeded, failed atomic.Int64
		reportMu          sync.Mutex
	)
	for _, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("block", path))

			block, err := read(path)
			if err != nil {
				failed.Add(1)
				log.Error("read block failed", zap.Error(err))
				return nil
			}

			ids, err := svc.Apply(gctx, block)
			if err != nil {
				failed.Add(1)
				log.Error("apply failed", zap.Error(err))
				return nil // don't abort the batch on one block
			}

			succeeded.Add(1)
			reportMu.Lock()
			report(path, ids)
			reportMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "apply blocks")
	}

	zap.L().Info("apply complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if n := failed.Load(); n > 0 {
		return eris.Errorf("%d of %d block(s) failed", n, len(paths))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
