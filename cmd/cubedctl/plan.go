package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubedgo/cubed/internal/humanmem"
)

var planCmd = &cobra.Command{
	Use:   "plan <pipeline.yaml>",
	Short: "Admit a primitive operation and print its task count and projected memory",
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

		fmt.Printf("tasks:        %d\n", prim.NumTasks)
		fmt.Printf("output blocks: %v\n", prim.Planner.NumOutputBlocks())
		for name, n := range prim.NumInputBlocks {
			fmt.Printf("input %-10s fan-in: %d\n", name, n)
		}
		allowedMem := pf.Primitive.AllowedMem
		if allowedMem == 0 {
			allowedMem = cfg.AllowedMem
		}
		fmt.Printf("projected memory: %s (allowed %s, reserved %s)\n",
			humanmem.Bytes(prim.Projection.Total),
			humanmem.Bytes(allowedMem),
			humanmem.Bytes(prim.Projection.Reserved),
		)
		return nil
	},
}
