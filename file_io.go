// file_io.go - executable image file format

package main

import (
	"fmt"
	"io"
	"os"
)

// ExecSegment is one placed segment of a linked image.
type ExecSegment struct {
	Name string
	Base uint32
	Data []byte
}

// Executable is a fully linked, loadable memory image with its entry point
// (the address of asm_main).
type Executable struct {
	Entry    uint32
	Segments []ExecSegment
}

// End returns the highest address occupied by the image plus one.
func (exe *Executable) End() uint32 {
	var end uint32
	for _, seg := range exe.Segments {
		if top := seg.Base + uint32(len(seg.Data)); top > end {
			end = top
		}
	}
	return end
}

// Binary executable layout (little-endian):
//
//	magic "LUZX", u16 version, u16 segment count, u32 entry,
//	per segment: string name, u32 base, u32 length, bytes
var exeMagic = [4]byte{'L', 'U', 'Z', 'X'}

const exeVersion = 1

// WriteTo serializes the executable image.
func (exe *Executable) WriteTo(w io.Writer) error {
	if _, err := w.Write(exeMagic[:]); err != nil {
		return err
	}
	if err := writeBinValues(w,
		uint16(exeVersion),
		uint16(len(exe.Segments)),
		exe.Entry,
	); err != nil {
		return err
	}
	for _, seg := range exe.Segments {
		if err := writeBinString(w, seg.Name); err != nil {
			return err
		}
		if err := writeBinValues(w, seg.Base, uint32(len(seg.Data))); err != nil {
			return err
		}
		if _, err := w.Write(seg.Data); err != nil {
			return err
		}
	}
	return nil
}

// ReadExecutable deserializes an executable image.
func ReadExecutable(r io.Reader, name string) (*Executable, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("reading executable header: %w", err)
	}
	if magic != exeMagic {
		return nil, fmt.Errorf("%s: not a Luz executable", name)
	}
	var version, nseg uint16
	var entry uint32
	if err := readBinValues(r, &version, &nseg, &entry); err != nil {
		return nil, fmt.Errorf("reading executable header: %w", err)
	}
	if version != exeVersion {
		return nil, fmt.Errorf("%s: unsupported executable version %d", name, version)
	}
	exe := &Executable{Entry: entry}
	for i := 0; i < int(nseg); i++ {
		segName, err := readBinString(r)
		if err != nil {
			return nil, err
		}
		var base, length uint32
		if err := readBinValues(r, &base, &length); err != nil {
			return nil, err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		exe.Segments = append(exe.Segments, ExecSegment{Name: segName, Base: base, Data: data})
	}
	return exe, nil
}

// SaveExecutable writes the image to a file.
func SaveExecutable(exe *Executable, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exe.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadExecutable reads an image from a file.
func LoadExecutable(path string) (*Executable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadExecutable(f, path)
}

// SaveObjectFile writes an object image to a file.
func SaveObjectFile(obj *ObjectFile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := obj.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadObjectFile reads an object image from a file.
func LoadObjectFile(path string) (*ObjectFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadObjectFile(f, path)
}
