// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrNotExecutable is returned for bytes that are not an object file.
var ErrNotExecutable = errors.New("not an executable object file")

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// machoMagics are the 32/64-bit Mach-O and fat binary magics, read
// little-endian.
var machoMagics = map[uint32]bool{
	0xfeedface: true, 0xcefaedfe: true,
	0xfeedfacf: true, 0xcffaedfe: true,
	0xcafebabe: true, 0xbebafeca: true,
}

// objectFormat names the object file format of data, or returns
// ErrNotExecutable.
func objectFormat(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, elfMagic):
		return "elf", nil
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		return "pe", nil
	case len(data) >= 4 && machoMagics[binary.LittleEndian.Uint32(data)]:
		return "macho", nil
	}
	return "", ErrNotExecutable
}
