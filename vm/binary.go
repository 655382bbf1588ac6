package vm

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Serialize writes the bit-exact on-wire container: a u64_le count of
// constants, then each constant as a u64_le byte-length followed by its
// UTF-8 bytes, then the raw concatenation of 2-byte opcodes and any
// inline 8-byte immediates.
func Serialize(w io.Writer, pre *PreBinary) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(pre.Constants))); err != nil {
		return errors.Wrap(err, "writing constant count")
	}
	for _, s := range pre.Constants {
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(s))); err != nil {
			return errors.Wrap(err, "writing constant length")
		}
		if _, err := bw.WriteString(s); err != nil {
			return errors.Wrap(err, "writing constant bytes")
		}
	}
	for _, in := range pre.Instructions {
		if err := binary.Write(bw, binary.LittleEndian, uint16(in.Op)); err != nil {
			return errors.Wrap(err, "writing opcode")
		}
		switch in.Op {
		case PushI64:
			if err := binary.Write(bw, binary.LittleEndian, uint64(in.IArg)); err != nil {
				return errors.Wrap(err, "writing PushI64 immediate")
			}
		case PushF64:
			if err := binary.Write(bw, binary.LittleEndian, math.Float64bits(in.FArg)); err != nil {
				return errors.Wrap(err, "writing PushF64 immediate")
			}
		}
	}
	return bw.Flush()
}

// Binary is a deserialized on-wire container: a constant pool plus the raw
// code region, ready for the verifier and the VM.
type Binary struct {
	Constants []string
	Code      []byte
}

// Deserialize reads the container §6 describes back into a Binary.
func Deserialize(r io.Reader) (*Binary, error) {
	br := bufio.NewReader(r)
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(err, "reading constant count")
	}
	constants := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		var n uint64
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrap(err, "reading constant length")
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, errors.Wrap(err, "reading constant bytes")
		}
		constants = append(constants, string(buf))
	}
	code, err := io.ReadAll(br)
	if err != nil {
		return nil, errors.Wrap(err, "reading code region")
	}
	return &Binary{Constants: constants, Code: code}, nil
}

// AssemblePreBinary encodes a PreBinary's instruction list into the raw
// code bytes the verifier and VM consume, without the constant-pool
// framing (used by tests that want the code region directly).
func AssemblePreBinary(pre *PreBinary) ([]byte, error) {
	var buf []byte
	for _, in := range pre.Instructions {
		var op [2]byte
		binary.LittleEndian.PutUint16(op[:], uint16(in.Op))
		buf = append(buf, op[:]...)
		switch in.Op {
		case PushI64:
			var imm [8]byte
			binary.LittleEndian.PutUint64(imm[:], uint64(in.IArg))
			buf = append(buf, imm[:]...)
		case PushF64:
			var imm [8]byte
			binary.LittleEndian.PutUint64(imm[:], math.Float64bits(in.FArg))
			buf = append(buf, imm[:]...)
		}
	}
	return buf, nil
}

// DebugSymbols is an optional table of source-level label names with its
// own LEB128 codec below. It is not part of the core wire format:
// Serialize never writes it, and Deserialize treats every byte after the
// constant table as code, so it does not recognise or skip such a table.
type DebugSymbols struct {
	Labels map[string]int64
}

// EncodeDebugSymbols LEB128-encodes a debug-symbol table: a varint count
// of entries, then per entry a varint name length, the UTF-8 name bytes,
// and a varint byte offset.
func EncodeDebugSymbols(w io.Writer, ds *DebugSymbols) error {
	if err := leb128EncodeUint(w, uint64(len(ds.Labels))); err != nil {
		return err
	}
	for name, offset := range ds.Labels {
		if err := leb128EncodeUint(w, uint64(len(name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, name); err != nil {
			return errors.Wrap(err, "writing debug symbol name")
		}
		if err := leb128EncodeUint(w, uint64(offset)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDebugSymbols reads back a trailer written by EncodeDebugSymbols.
func DecodeDebugSymbols(r io.Reader) (*DebugSymbols, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	count, err := leb128DecodeUint(br)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]int64, count)
	for i := uint64(0); i < count; i++ {
		nameLen, err := leb128DecodeUint(br)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, nameLen)
		for j := range buf {
			b, err := br.ReadByte()
			if err != nil {
				return nil, errors.Wrap(err, "reading debug symbol name")
			}
			buf[j] = b
		}
		offset, err := leb128DecodeUint(br)
		if err != nil {
			return nil, err
		}
		labels[string(buf)] = int64(offset)
	}
	return &DebugSymbols{Labels: labels}, nil
}

// leb128EncodeUint writes n as an unsigned LEB128 varint, grounded on the
// standard 7-bits-per-byte-plus-continuation-bit encoding.
func leb128EncodeUint(w io.Writer, n uint64) error {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return errors.Wrap(err, "writing leb128 byte")
		}
		if n == 0 {
			return nil
		}
	}
}

func leb128DecodeUint(br io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, errors.Wrap(err, "reading leb128 byte")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}
