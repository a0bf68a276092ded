// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/google/uuid"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	pkgbtf "github.com/kernmod/bpfloader/pkg/btf"
	pkgelf "github.com/kernmod/bpfloader/pkg/elf"
	"github.com/kernmod/bpfloader/pkg/insn"
	"github.com/kernmod/bpfloader/pkg/logging"
	"github.com/kernmod/bpfloader/pkg/registry"
)

var log = logging.Subsystem("bpfobj")

// Open parses and classifies the ELF object at path, but does not
// create any kernel resources (that happens in Load).
func Open(path string, opts ...Option) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bpferr.New(bpferr.LibELF, path, err)
	}

	obj, err := OpenReader(f, path, opts...)
	// OpenReader releases the scratch ELF state (elfFinish) regardless
	// of outcome; the os.File itself is closed here on failure, and by
	// Close (via closeFile) on success.
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	obj.closeFile = f
	return obj, nil
}

// OpenBytes parses an in-memory object. If name is empty, a synthetic
// origin identifier is generated, matching spec.md §3's "path or
// synthetic name for in-memory buffers".
func OpenBytes(buf []byte, name string, opts ...Option) (*Object, error) {
	if name == "" {
		name = "mem-" + uuid.NewString()
	}
	return OpenReader(bytes.NewReader(buf), name, opts...)
}

// OpenReader parses an object readable at r, identified by origin for
// error messages, logging, and the process-wide registry.
func OpenReader(r io.ReaderAt, origin string, opts ...Option) (obj *Object, err error) {
	o := &Object{
		origin:    origin,
		Programs:  nil,
		Maps:      nil,
	}

	defer func() {
		o.elfFinish()
		if err != nil {
			// Scoped-acquisition discipline (spec.md §5): any failure
			// during open tears down the partially-built Object.
			_ = o.Close()
		}
	}()

	ef, err := pkgelf.Open(r, origin)
	if err != nil {
		return nil, err
	}
	o.scratch = ef

	if ef.HasLicense {
		o.license = ef.License
		o.hasLicense = true
	}
	if ef.HasVersion {
		o.kernVersion = ef.KernVersion
		o.hasVersion = true
	}

	if err := checkEndian(ef.ByteOrder, origin); err != nil {
		return nil, err
	}

	if ef.HasBTF {
		parsed, perr := pkgbtf.Parse(ef.BTFData)
		if perr != nil {
			log.WithField("object", origin).WithError(perr).Warning("failed to parse .BTF section, continuing without type metadata")
		} else {
			o.btf = parsed
		}
	}

	if err := o.buildMaps(ef); err != nil {
		return nil, err
	}
	if err := o.buildPrograms(ef); err != nil {
		return nil, err
	}
	if err := o.resolveNames(ef); err != nil {
		return nil, err
	}
	if err := o.collectRelocations(ef); err != nil {
		return nil, err
	}
	if err := applyOptions(o, opts); err != nil {
		return nil, err
	}

	registry.Register(o)
	return o, nil
}

// elfFinish releases the scratch ELF state. It is idempotent: once
// o.scratch is nil, subsequent calls are no-ops.
func (o *Object) elfFinish() {
	if o.scratch == nil {
		return
	}
	o.scratch = nil
}

// checkEndian rejects an object whose byte order does not match the
// host's. Per spec.md §1's Non-goals, mismatched objects are rejected,
// never byte-swapped.
func checkEndian(objOrder binary.ByteOrder, origin string) error {
	if isObjOrderNative(objOrder) {
		return nil
	}
	return bpferr.New(bpferr.Endian, origin, fmt.Errorf("object byte order does not match host"))
}

func isObjOrderNative(objOrder binary.ByteOrder) bool {
	var x uint16 = 1
	hostLittle := *(*byte)(unsafe.Pointer(&x)) == 1

	buf := make([]byte, 2)
	objOrder.PutUint16(buf, 1)
	objLittle := buf[0] == 1

	return hostLittle == objLittle
}

// insnProgramFrom decodes raw PROGBITS bytes into an insn.Program. At
// least one 8-byte word is required (spec.md §4.3).
func insnProgramFrom(data []byte, order binary.ByteOrder, origin, section string) (*insn.Program, error) {
	if len(data) < insn.Size {
		return nil, bpferr.New(bpferr.Format, origin, fmt.Errorf("section %q shorter than one instruction", section)).WithSection(section)
	}
	p, err := insn.NewProgram(data, order)
	if err != nil {
		return nil, bpferr.New(bpferr.Format, origin, err).WithSection(section)
	}
	return p, nil
}
