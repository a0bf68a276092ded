// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Option configures an Object at open time.
type Option func(*Object) error

// WithOffloadDevice resolves ifaceName to a kernel interface index via
// netlink and tags every Map and Program in the Object for hardware
// offload to that device.
func WithOffloadDevice(ifaceName string) Option {
	return func(o *Object) error {
		link, err := netlink.LinkByName(ifaceName)
		if err != nil {
			return fmt.Errorf("resolve offload device %q: %w", ifaceName, err)
		}
		idx := uint32(link.Attrs().Index)
		for _, m := range o.Maps {
			m.IfIndex = idx
		}
		for _, p := range o.Programs {
			p.IfIndex = idx
		}
		return nil
	}
}

// WithDisableBTF drops any parsed type metadata, forcing map creation
// to proceed without BTF annotation even if a .BTF section was present.
func WithDisableBTF() Option {
	return func(o *Object) error {
		o.btf = nil
		return nil
	}
}

// applyOptions runs opts against o in order, stopping at the first error.
func applyOptions(o *Object, opts []Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}
