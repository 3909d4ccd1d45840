package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const magic = 0xCAFEBABE

var (
	ErrBadMagic  = errors.New("classfile: bad magic number")
	ErrTruncated = errors.New("classfile: truncated input")
	ErrMalformed = errors.New("classfile: malformed input")
)

const (
	attrSignature          = "Signature"
	attrExceptions         = "Exceptions"
	attrVisibleAnnotations = "RuntimeVisibleAnnotations"
	attrHiddenAnnotations  = "RuntimeInvisibleAnnotations"
)

// decoder is a forward-only big-endian cursor. The first out-of-bounds read
// sets err and every later read returns zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w at offset %d", ErrTruncated, d.off)
		return false
	}
	return true
}

func (d *decoder) u1() byte {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) u2() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) u4() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) skip(n int) {
	if d.need(n) {
		d.off += n
	}
}

// attrRange is an attribute body whose decoding is deferred until the owning
// declaration has been reported.
type attrRange struct {
	start, end int
	visible    bool
}

// Reader walks the raw bytes of one class file.
type Reader struct {
	buf []byte
}

// NewReader returns a reader over b. The slice is not copied and must not be
// modified while Accept runs.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Accept walks the class file once, front to back, reporting declarations to
// v. Method bodies and fields are skipped by length without decoding. Each
// byte is decoded at most once.
func (r *Reader) Accept(v ClassVisitor) error {
	d := &decoder{buf: r.buf}
	if d.u4() != magic {
		if d.err != nil {
			return d.err
		}
		return ErrBadMagic
	}
	minor := int(d.u2())
	major := int(d.u2())
	if d.err != nil {
		return d.err
	}

	cp, err := readConstPool(d)
	if err != nil {
		return err
	}

	access := int(d.u2())
	thisIndex := int(d.u2())
	superIndex := int(d.u2())
	ifaceCount := int(d.u2())
	if d.err != nil {
		return d.err
	}
	name, err := cp.className(thisIndex)
	if err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	superName, err := cp.className(superIndex)
	if err != nil {
		return fmt.Errorf("super_class: %w", err)
	}
	var interfaces []string
	if ifaceCount > 0 {
		interfaces = make([]string, 0, ifaceCount)
	}
	for i := 0; i < ifaceCount; i++ {
		iface, err := cp.className(int(d.u2()))
		if d.err != nil {
			return d.err
		}
		if err != nil {
			return fmt.Errorf("interface %d: %w", i, err)
		}
		interfaces = append(interfaces, iface)
	}
	v.Visit(minor<<16|major, access, name, superName, interfaces)

	if err := skipFields(d); err != nil {
		return err
	}

	methodCount := int(d.u2())
	for i := 0; i < methodCount; i++ {
		if err := readMethod(d, cp, v); err != nil {
			return fmt.Errorf("%s method %d: %w", name, i, err)
		}
	}
	if d.err != nil {
		return d.err
	}

	attrCount := int(d.u2())
	for i := 0; i < attrCount; i++ {
		attrName, start, end, err := readAttrHeader(d, cp)
		if err != nil {
			return err
		}
		if attrName == attrVisibleAnnotations || attrName == attrHiddenAnnotations {
			ar := attrRange{start: start, end: end, visible: attrName == attrVisibleAnnotations}
			if err := readAnnotations(d, cp, ar, v.VisitAnnotation); err != nil {
				return fmt.Errorf("%s annotations: %w", name, err)
			}
		}
		d.off = end
	}
	v.VisitEnd()
	return nil
}

func readAttrHeader(d *decoder, cp *constPool) (name string, start, end int, err error) {
	nameIndex := int(d.u2())
	length := int(d.u4())
	if d.err != nil {
		return "", 0, 0, d.err
	}
	start = d.off
	if !d.need(length) {
		return "", 0, 0, d.err
	}
	name, err = cp.utf8(nameIndex)
	if err != nil {
		return "", 0, 0, fmt.Errorf("attribute name: %w", err)
	}
	return name, start, start + length, nil
}

func skipFields(d *decoder) error {
	count := int(d.u2())
	for i := 0; i < count; i++ {
		d.skip(6) // access, name, descriptor
		attrs := int(d.u2())
		for j := 0; j < attrs; j++ {
			d.skip(2)
			d.skip(int(d.u4()))
		}
		if d.err != nil {
			return fmt.Errorf("field %d: %w", i, d.err)
		}
	}
	return d.err
}

func readMethod(d *decoder, cp *constPool, v ClassVisitor) error {
	access := int(d.u2())
	nameIndex := int(d.u2())
	descIndex := int(d.u2())
	attrCount := int(d.u2())
	if d.err != nil {
		return d.err
	}
	name, err := cp.utf8(nameIndex)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	desc, err := cp.utf8(descIndex)
	if err != nil {
		return fmt.Errorf("descriptor: %w", err)
	}

	var (
		signature   string
		exceptions  []string
		annotations []attrRange
	)
	for i := 0; i < attrCount; i++ {
		attrName, start, end, err := readAttrHeader(d, cp)
		if err != nil {
			return err
		}
		switch attrName {
		case attrSignature:
			signature, err = cp.utf8(int(d.u2()))
			if err != nil {
				return fmt.Errorf("signature: %w", err)
			}
		case attrExceptions:
			n := int(d.u2())
			exceptions = make([]string, 0, n)
			for j := 0; j < n; j++ {
				exc, err := cp.className(int(d.u2()))
				if err != nil {
					return fmt.Errorf("exception %d: %w", j, err)
				}
				exceptions = append(exceptions, exc)
			}
		case attrVisibleAnnotations, attrHiddenAnnotations:
			annotations = append(annotations, attrRange{
				start:   start,
				end:     end,
				visible: attrName == attrVisibleAnnotations,
			})
		}
		if d.err != nil {
			return d.err
		}
		if d.off > end {
			return fmt.Errorf("%w: attribute %s overruns its length", ErrMalformed, attrName)
		}
		d.off = end
	}

	mv := v.VisitMethod(access, name, desc, signature, exceptions)
	if mv == nil {
		return nil
	}
	resume := d.off
	for _, ar := range annotations {
		if err := readAnnotations(d, cp, ar, mv.VisitAnnotation); err != nil {
			return fmt.Errorf("%s%s annotations: %w", name, desc, err)
		}
	}
	d.off = resume
	mv.VisitEnd()
	return nil
}

// readAnnotations decodes one Runtime(In)VisibleAnnotations body.
func readAnnotations(d *decoder, cp *constPool, ar attrRange,
	visit func(desc string, visible bool) AnnotationVisitor) error {
	d.off = ar.start
	count := int(d.u2())
	for i := 0; i < count; i++ {
		desc, err := cp.utf8(int(d.u2()))
		if d.err != nil {
			return d.err
		}
		if err != nil {
			return fmt.Errorf("annotation %d type: %w", i, err)
		}
		if err := readElementPairs(d, cp, visit(desc, ar.visible)); err != nil {
			return err
		}
	}
	if d.err != nil {
		return d.err
	}
	if d.off != ar.end {
		return fmt.Errorf("%w: annotation attribute length mismatch", ErrMalformed)
	}
	return nil
}

// readElementPairs consumes element_value_pairs, reporting constants to av
// when it is non-nil.
func readElementPairs(d *decoder, cp *constPool, av AnnotationVisitor) error {
	pairs := int(d.u2())
	for i := 0; i < pairs; i++ {
		nameIndex := int(d.u2())
		if d.err != nil {
			return d.err
		}
		if av == nil {
			if err := skipElementValue(d, 0); err != nil {
				return err
			}
			continue
		}
		elemName, err := cp.utf8(nameIndex)
		if err != nil {
			return fmt.Errorf("element name: %w", err)
		}
		value, ok, err := readElementValue(d, cp)
		if err != nil {
			return fmt.Errorf("element %s: %w", elemName, err)
		}
		if ok {
			av.Visit(elemName, value)
		}
	}
	if d.err != nil {
		return d.err
	}
	if av != nil {
		av.VisitEnd()
	}
	return nil
}

// readElementValue decodes constant element values; other kinds are skipped
// and reported with ok=false.
func readElementValue(d *decoder, cp *constPool) (value any, ok bool, err error) {
	tag := d.u1()
	if d.err != nil {
		return nil, false, d.err
	}
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z':
		n, err := cp.int32At(int(d.u2()))
		if err != nil {
			return nil, false, err
		}
		switch tag {
		case 'B':
			return int8(n), true, nil
		case 'C':
			return uint16(n), true, nil
		case 'S':
			return int16(n), true, nil
		case 'Z':
			return n != 0, true, nil
		}
		return n, true, nil
	case 'J':
		n, err := cp.int64At(int(d.u2()))
		return n, err == nil, err
	case 'F':
		f, err := cp.float32At(int(d.u2()))
		return f, err == nil, err
	case 'D':
		f, err := cp.float64At(int(d.u2()))
		return f, err == nil, err
	case 's':
		s, err := cp.utf8(int(d.u2()))
		return s, err == nil, err
	default:
		d.off--
		return nil, false, skipElementValue(d, 0)
	}
}

// maxElementDepth bounds annotation and array nesting inside one element
// value.
const maxElementDepth = 64

func skipElementValue(d *decoder, depth int) error {
	if depth > maxElementDepth {
		return fmt.Errorf("%w: element values nested deeper than %d", ErrMalformed, maxElementDepth)
	}
	tag := d.u1()
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		d.skip(2)
	case 'e':
		d.skip(4)
	case '@':
		d.skip(2)
		return skipElementPairs(d, depth+1)
	case '[':
		n := int(d.u2())
		for i := 0; i < n && d.err == nil; i++ {
			if err := skipElementValue(d, depth+1); err != nil {
				return err
			}
		}
	default:
		if d.err != nil {
			return d.err
		}
		return fmt.Errorf("%w: unknown element value tag %q", ErrMalformed, tag)
	}
	return d.err
}

func skipElementPairs(d *decoder, depth int) error {
	pairs := int(d.u2())
	for i := 0; i < pairs && d.err == nil; i++ {
		d.skip(2)
		if err := skipElementValue(d, depth); err != nil {
			return err
		}
	}
	return d.err
}
