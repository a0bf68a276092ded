// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kernmod/bpfloader/pkg/bpfobj"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <object.o>",
		Short: "Parse and classify an ELF object without touching the kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := bpfobj.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer obj.Close()

			fmt.Printf("origin:  %s\n", obj.Origin())
			fmt.Printf("license: %q\n", obj.License())
			fmt.Printf("kern_version: %#x\n", obj.KernVersion())
			fmt.Printf("programs: %d\n", len(obj.Programs))
			for _, p := range obj.Programs {
				fmt.Printf("  %-24s insns=%d main_prog_cnt=%d\n", p.Name(), p.InsnCount(), p.MainProgCnt())
			}
			fmt.Printf("maps: %d\n", len(obj.Maps))
			for _, m := range obj.Maps {
				fmt.Printf("  %-24s offset=%d key=%d value=%d max=%d\n", m.Name, m.Offset, m.Def.KeySize, m.Def.ValueSize, m.Def.MaxEntries)
			}
			return nil
		},
	}
}
