// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kernmod/bpfloader/pkg/bpfobj"
	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/proginfer"
)

func newLoadCommand() *cobra.Command {
	var (
		pinPath string
		device  string
	)

	cmd := &cobra.Command{
		Use:   "load <object.o>",
		Short: "Load every program and map in an ELF object against the running kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pinPath = Vp.GetString("pin")
			device = Vp.GetString("offload-device")

			opts := []bpfobj.Option{}
			if device != "" {
				opts = append(opts, bpfobj.WithOffloadDevice(device))
			}

			obj, err := bpfobj.Open(args[0], opts...)
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer obj.Close()

			if len(obj.Programs) == 0 {
				return fmt.Errorf("open %s: object contains no programs", args[0])
			}

			// spec.md §4.8: the public load-from-file wrapper is the one
			// place inference failure becomes a hard error; the library
			// itself only defaults every Program to KPROBE.
			for _, p := range obj.Programs {
				if p.SectionName() == ".text" {
					continue
				}
				inferred, ok := proginfer.Infer(p.SectionName())
				if !ok {
					return fmt.Errorf("section %q: could not infer program type", p.SectionName())
				}
				p.Type = inferred.Type
				p.ExpectedAttach = inferred.ExpectedAttach
			}

			k := kernel.NewSyscall()
			if err := obj.Load(k); err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}

			for _, p := range obj.Programs {
				for i, fd := range p.Instances().FDs {
					if fd >= 0 {
						fmt.Printf("%s instance %d -> fd %d\n", p.Name(), i, fd)
					}
				}
			}

			if pinPath != "" {
				if err := obj.Pin(k, pinPath); err != nil {
					return fmt.Errorf("pin %s: %w", args[0], err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pinPath, "pin", "", "pin all maps and programs under this bpffs directory")
	cmd.Flags().StringVar(&device, "offload-device", "", "network interface to offload maps and programs to")
	bindEnv("pin")
	bindEnv("offload-device")
	_ = Vp.BindPFlags(cmd.Flags())
	return cmd
}
