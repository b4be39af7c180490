package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubedgo/cubed/internal/runtime"
)

var workers int

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Run a primitive operation to completion against the in-memory store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := loadPipelineFile(args[0])
		if err != nil {
			return err
		}
		ba, err := buildArrays(pf)
		if err != nil {
			return err
		}
		prim, err := buildPrimitive(pf.Primitive, ba, cfg)
		if err != nil {
			return err
		}

		w := workers
		if w == 0 {
			w = cfg.Workers
		}
		rt := runtime.NewLocalRuntime(w, cfg.RetryAttempts)
		if err := rt.RunPrimitive(context.Background(), prim.Spec(), flatBridge{}); err != nil {
			return fmt.Errorf("run: %w", err)
		}

		out := ba.stores[pf.Primitive.Output]
		fmt.Printf("output %q: %v\n", pf.Primitive.Output, out.Snapshot())
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&workers, "workers", 0, "override the configured worker pool size")
}
