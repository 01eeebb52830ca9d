package bytecode

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Image format:
//   - Magic number (4 bytes): "SVMB"
//   - Version (1 byte)
//   - Program message in protobuf wire format:
//     1 version, 2 entry, 3 globals (varint)
//     4 constants (packed zigzag varints)
//     5 function (message, repeated)
//     6 instruction (message, repeated)
//     7 lines (packed varints)
const ImageVersion byte = 0x01

var imageMagic = []byte{'S', 'V', 'M', 'B'}

// ErrNotImage is returned when data does not start with the image magic.
var ErrNotImage = errors.New("not a program image")

const (
	fieldVersion     protowire.Number = 1
	fieldEntry       protowire.Number = 2
	fieldGlobals     protowire.Number = 3
	fieldConstants   protowire.Number = 4
	fieldFunction    protowire.Number = 5
	fieldInstruction protowire.Number = 6
	fieldLines       protowire.Number = 7

	fieldFuncName    protowire.Number = 1
	fieldFuncEntry   protowire.Number = 2
	fieldFuncArity   protowire.Number = 3
	fieldFuncLocals  protowire.Number = 4
	fieldFuncReturns protowire.Number = 5

	fieldInstrOp protowire.Number = 1
	fieldInstrA  protowire.Number = 2
	fieldInstrB  protowire.Number = 3
)

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return bytes.HasPrefix(data, imageMagic)
}

// EncodeImage serializes prog to the binary image format.
func EncodeImage(prog *Program) []byte {
	buf := make([]byte, 0, 16+len(prog.Code)*6)
	buf = append(buf, imageMagic...)
	buf = append(buf, ImageVersion)

	buf = appendVarintField(buf, fieldVersion, uint64(ImageVersion))
	buf = appendVarintField(buf, fieldEntry, protowire.EncodeZigZag(int64(prog.Entry)))
	buf = appendVarintField(buf, fieldGlobals, protowire.EncodeZigZag(int64(prog.Globals)))

	if len(prog.Constants) > 0 {
		var packed []byte
		for _, c := range prog.Constants {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(c))
		}
		buf = protowire.AppendTag(buf, fieldConstants, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}

	for _, fn := range prog.Functions {
		var msg []byte
		msg = protowire.AppendTag(msg, fieldFuncName, protowire.BytesType)
		msg = protowire.AppendString(msg, fn.Name)
		msg = appendVarintField(msg, fieldFuncEntry, protowire.EncodeZigZag(int64(fn.Entry)))
		msg = appendVarintField(msg, fieldFuncArity, protowire.EncodeZigZag(int64(fn.Arity)))
		msg = appendVarintField(msg, fieldFuncLocals, protowire.EncodeZigZag(int64(fn.Locals)))
		msg = appendVarintField(msg, fieldFuncReturns, protowire.EncodeZigZag(int64(fn.Returns)))
		buf = protowire.AppendTag(buf, fieldFunction, protowire.BytesType)
		buf = protowire.AppendBytes(buf, msg)
	}

	for _, in := range prog.Code {
		var msg []byte
		msg = appendVarintField(msg, fieldInstrOp, uint64(in.Op))
		if in.A != 0 {
			msg = appendVarintField(msg, fieldInstrA, protowire.EncodeZigZag(int64(in.A)))
		}
		if in.B != 0 {
			msg = appendVarintField(msg, fieldInstrB, protowire.EncodeZigZag(int64(in.B)))
		}
		buf = protowire.AppendTag(buf, fieldInstruction, protowire.BytesType)
		buf = protowire.AppendBytes(buf, msg)
	}

	if len(prog.Lines) > 0 {
		var packed []byte
		for _, line := range prog.Lines {
			packed = protowire.AppendVarint(packed, uint64(line))
		}
		buf = protowire.AppendTag(buf, fieldLines, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}

	return buf
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// DecodeImage parses a binary image produced by EncodeImage. Unknown fields
// are skipped.
func DecodeImage(data []byte) (*Program, error) {
	if !IsImage(data) {
		return nil, ErrNotImage
	}
	if len(data) < len(imageMagic)+1 {
		return nil, fmt.Errorf("image truncated")
	}
	if v := data[len(imageMagic)]; v != ImageVersion {
		return nil, fmt.Errorf("unsupported image version %d", v)
	}

	prog := &Program{}
	err := walkFields(data[len(imageMagic)+1:], func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			if byte(v) != ImageVersion {
				return fmt.Errorf("image body version %d does not match header", v)
			}
		case num == fieldEntry && typ == protowire.VarintType:
			prog.Entry = int(protowire.DecodeZigZag(v))
		case num == fieldGlobals && typ == protowire.VarintType:
			prog.Globals = int(protowire.DecodeZigZag(v))
		case num == fieldConstants && typ == protowire.BytesType:
			values, err := unpackVarints(raw)
			if err != nil {
				return fmt.Errorf("constants: %w", err)
			}
			for _, c := range values {
				prog.Constants = append(prog.Constants, protowire.DecodeZigZag(c))
			}
		case num == fieldFunction && typ == protowire.BytesType:
			fn, err := decodeFunction(raw)
			if err != nil {
				return fmt.Errorf("function %d: %w", len(prog.Functions), err)
			}
			prog.Functions = append(prog.Functions, fn)
		case num == fieldInstruction && typ == protowire.BytesType:
			in, err := decodeInstruction(raw)
			if err != nil {
				return fmt.Errorf("instruction %d: %w", len(prog.Code), err)
			}
			prog.Code = append(prog.Code, in)
		case num == fieldLines && typ == protowire.BytesType:
			values, err := unpackVarints(raw)
			if err != nil {
				return fmt.Errorf("lines: %w", err)
			}
			for _, line := range values {
				prog.Lines = append(prog.Lines, int(line))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return prog, nil
}

func decodeFunction(data []byte) (Function, error) {
	var fn Function
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldFuncName && typ == protowire.BytesType:
			fn.Name = string(raw)
		case num == fieldFuncEntry && typ == protowire.VarintType:
			fn.Entry = int(protowire.DecodeZigZag(v))
		case num == fieldFuncArity && typ == protowire.VarintType:
			fn.Arity = int(protowire.DecodeZigZag(v))
		case num == fieldFuncLocals && typ == protowire.VarintType:
			fn.Locals = int(protowire.DecodeZigZag(v))
		case num == fieldFuncReturns && typ == protowire.VarintType:
			fn.Returns = int(protowire.DecodeZigZag(v))
		}
		return nil
	})
	return fn, err
}

func decodeInstruction(data []byte) (Instruction, error) {
	var in Instruction
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case fieldInstrOp:
			if v > 0xff {
				return fmt.Errorf("opcode %d out of range", v)
			}
			in.Op = Opcode(v)
		case fieldInstrA:
			in.A = int(protowire.DecodeZigZag(v))
		case fieldInstrB:
			in.B = int(protowire.DecodeZigZag(v))
		}
		return nil
	})
	return in, err
}

// walkFields calls fn for every field in a wire-format message. Varint
// fields pass their value in v; length-delimited fields pass raw.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var v uint64
		var raw []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func unpackVarints(data []byte) ([]uint64, error) {
	var out []uint64
	for len(data) > 0 {
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, v)
		data = data[n:]
	}
	return out, nil
}
