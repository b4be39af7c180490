package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubedgo/cubed/internal/fusion"
	"github.com/cubedgo/cubed/internal/runtime"
)

var fuseCmd = &cobra.Command{
	Use:   "fuse <predecessor.yaml> <successor.yaml>",
	Short: "Fuse a predecessor primitive into a successor and run the result",
	Long: `Fuse loads two pipeline files that each describe one primitive. The
successor's input list must name the predecessor's output array as one of
its slots; fuse composes the two kernels into one and eliminates that
intermediate array, then runs the fused primitive to completion.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		predFile, err := loadPipelineFile(args[0])
		if err != nil {
			return err
		}
		succFile, err := loadPipelineFile(args[1])
		if err != nil {
			return err
		}

		ba, err := buildArrays(mergeArrays(predFile, succFile))
		if err != nil {
			return err
		}

		pred, err := buildPrimitive(predFile.Primitive, ba, cfg)
		if err != nil {
			return fmt.Errorf("predecessor: %w", err)
		}
		succ, err := buildPrimitive(succFile.Primitive, ba, cfg)
		if err != nil {
			return fmt.Errorf("successor: %w", err)
		}

		ok, reason := fusion.CanFusePair(pred, succ)
		if !ok {
			return fmt.Errorf("cannot fuse: %s", reason)
		}

		fused, err := fusion.FusePair(pred, succ)
		if err != nil {
			return fmt.Errorf("fuse: %w", err)
		}

		w := workers
		if w == 0 {
			w = cfg.Workers
		}
		rt := runtime.NewLocalRuntime(w, cfg.RetryAttempts)
		if err := rt.RunPrimitive(context.Background(), fused.Spec(), flatBridge{}); err != nil {
			return fmt.Errorf("run fused: %w", err)
		}

		fmt.Printf("fused tasks: %d (predecessor had %d, successor had %d)\n",
			fused.NumTasks, pred.NumTasks, succ.NumTasks)
		out := ba.stores[succFile.Primitive.Output]
		fmt.Printf("output %q: %v\n", succFile.Primitive.Output, out.Snapshot())
		return nil
	},
}

func init() {
	fuseCmd.Flags().IntVar(&workers, "workers", 0, "override the configured worker pool size")
}

// mergeArrays combines the array declarations of two pipeline files so a
// single builtArrays set backs both the predecessor and successor
// primitives, sharing the intermediate array definition between them.
func mergeArrays(a, b *pipelineFile) *pipelineFile {
	merged := &pipelineFile{Arrays: make(map[string]arraySpec, len(a.Arrays)+len(b.Arrays))}
	for name, spec := range a.Arrays {
		merged.Arrays[name] = spec
	}
	for name, spec := range b.Arrays {
		merged.Arrays[name] = spec
	}
	return merged
}
