package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// constPool indexes entries by payload offset. Utf8 entries are decoded on
// first use and cached for the lifetime of the reader.
type constPool struct {
	buf     []byte
	tags    []byte
	offsets []int
	strings []string
	decoded []bool
}

func readConstPool(d *decoder) (*constPool, error) {
	count := int(d.u2())
	if d.err != nil {
		return nil, d.err
	}
	cp := &constPool{
		buf:     d.buf,
		tags:    make([]byte, count),
		offsets: make([]int, count),
		strings: make([]string, count),
		decoded: make([]bool, count),
	}
	for i := 1; i < count; i++ {
		tag := d.u1()
		cp.tags[i] = tag
		cp.offsets[i] = d.off
		switch tag {
		case tagUtf8:
			d.skip(int(d.u2()))
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			d.skip(4)
		case tagLong, tagDouble:
			d.skip(8)
			// eight-byte constants occupy two slots
			i++
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			d.skip(2)
		case tagMethodHandle:
			d.skip(3)
		default:
			if d.err != nil {
				return nil, d.err
			}
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at index %d", ErrMalformed, tag, i)
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	return cp, nil
}

func (cp *constPool) entry(index int, tag byte) (int, error) {
	if index <= 0 || index >= len(cp.tags) {
		return 0, fmt.Errorf("%w: constant pool index %d out of range", ErrMalformed, index)
	}
	if cp.tags[index] != tag {
		return 0, fmt.Errorf("%w: constant pool index %d has tag %d, want %d",
			ErrMalformed, index, cp.tags[index], tag)
	}
	return cp.offsets[index], nil
}

func (cp *constPool) utf8(index int) (string, error) {
	off, err := cp.entry(index, tagUtf8)
	if err != nil {
		return "", err
	}
	if cp.decoded[index] {
		return cp.strings[index], nil
	}
	n := int(binary.BigEndian.Uint16(cp.buf[off:]))
	s, err := decodeModifiedUTF8(cp.buf[off+2 : off+2+n])
	if err != nil {
		return "", fmt.Errorf("constant pool index %d: %w", index, err)
	}
	cp.strings[index] = s
	cp.decoded[index] = true
	return s, nil
}

// className resolves a CONSTANT_Class entry to its internal name. Index zero
// yields the empty string, which the format uses for "no class".
func (cp *constPool) className(index int) (string, error) {
	if index == 0 {
		return "", nil
	}
	off, err := cp.entry(index, tagClass)
	if err != nil {
		return "", err
	}
	return cp.utf8(int(binary.BigEndian.Uint16(cp.buf[off:])))
}

func (cp *constPool) int32At(index int) (int32, error) {
	off, err := cp.entry(index, tagInteger)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(cp.buf[off:])), nil
}

func (cp *constPool) float32At(index int) (float32, error) {
	off, err := cp.entry(index, tagFloat)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(cp.buf[off:])), nil
}

func (cp *constPool) int64At(index int) (int64, error) {
	off, err := cp.entry(index, tagLong)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(cp.buf[off:])), nil
}

func (cp *constPool) float64At(index int) (float64, error) {
	off, err := cp.entry(index, tagDouble)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(cp.buf[off:])), nil
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded in two
// bytes and supplementary characters as surrogate pairs of three bytes each.
func decodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80 && c != 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad modified UTF-8 sequence", ErrMalformed)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad modified UTF-8 sequence", ErrMalformed)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: bad modified UTF-8 lead byte 0x%02x", ErrMalformed, c)
		}
	}
	runes := utf16.Decode(units)
	out := make([]byte, 0, len(runes))
	for _, r := range runes {
		out = utf8.AppendRune(out, r)
	}
	return string(out), nil
}
