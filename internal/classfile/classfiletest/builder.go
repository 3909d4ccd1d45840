// Package classfiletest assembles minimal class files for tests. The output
// is structurally valid for the reader: a constant pool, fields, methods with
// an opaque Code attribute, and annotations. It does not produce verifiable
// bytecode.
package classfiletest

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Class describes a class file to assemble.
type Class struct {
	Major       uint16 // defaults to 52 (Java 8)
	Minor       uint16
	Access      uint16
	Name        string
	Super       string // empty means no superclass
	Interfaces  []string
	Signature   string
	Fields      []Field
	Methods     []Method
	Annotations []Annotation
}

// Field is emitted with an optional ConstantValue attribute.
type Field struct {
	Access   uint16
	Name     string
	Desc     string
	Constant any // int32, int64, float64 or string
}

// Method is emitted with a Code attribute holding Body (or a single return
// instruction) unless Abstract is set.
type Method struct {
	Access      uint16
	Name        string
	Desc        string
	Signature   string
	Exceptions  []string
	Annotations []Annotation
	Abstract    bool
	Body        []byte
}

// Annotation is one runtime annotation. Invisible annotations go to the
// RuntimeInvisibleAnnotations attribute.
type Annotation struct {
	Desc      string
	Invisible bool
	Values    []Element
}

// Element is a named element value. Value may be a string, int32, int64,
// float32, float64, bool, int8, int16, uint16, Enum, ClassRef, Annotation or
// []any.
type Element struct {
	Name  string
	Value any
}

// Enum is an enum constant element value.
type Enum struct {
	Desc  string
	Const string
}

// ClassRef is a class literal element value, e.g. "Ljava/lang/String;".
type ClassRef string

// Bytes assembles the class file. It panics on unsupported element values,
// which is a test authoring error.
func (c Class) Bytes() []byte {
	p := &pool{index: map[string]uint16{}}
	body := &writer{}

	body.u2(c.Access)
	body.u2(p.class(c.Name))
	if c.Super == "" {
		body.u2(0)
	} else {
		body.u2(p.class(c.Super))
	}
	body.u2(uint16(len(c.Interfaces)))
	for _, iface := range c.Interfaces {
		body.u2(p.class(iface))
	}

	body.u2(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		body.u2(f.Access)
		body.u2(p.utf8(f.Name))
		body.u2(p.utf8(f.Desc))
		if f.Constant == nil {
			body.u2(0)
			continue
		}
		body.u2(1)
		body.u2(p.utf8("ConstantValue"))
		body.u4(2)
		body.u2(p.constant(f.Constant))
	}

	body.u2(uint16(len(c.Methods)))
	for _, m := range c.Methods {
		writeMethod(body, p, m)
	}

	var attrs []attr
	if c.Signature != "" {
		attrs = append(attrs, signatureAttr(p, c.Signature))
	}
	attrs = append(attrs, annotationAttrs(p, c.Annotations)...)
	attrs = append(attrs, attr{name: p.utf8("SourceFile"), data: u2bytes(p.utf8("Test.java"))})
	writeAttrs(body, attrs)

	major := c.Major
	if major == 0 {
		major = 52
	}
	out := &writer{}
	out.u4(0xCAFEBABE)
	out.u2(c.Minor)
	out.u2(major)
	out.u2(p.next())
	out.buf = append(out.buf, p.buf...)
	out.buf = append(out.buf, body.buf...)
	return out.buf
}

func writeMethod(w *writer, p *pool, m Method) {
	w.u2(m.Access)
	w.u2(p.utf8(m.Name))
	w.u2(p.utf8(m.Desc))

	var attrs []attr
	if !m.Abstract {
		body := m.Body
		if len(body) == 0 {
			body = []byte{0xB1} // return
		}
		code := &writer{}
		code.u2(4) // max_stack
		code.u2(4) // max_locals
		code.u4(uint32(len(body)))
		code.buf = append(code.buf, body...)
		code.u2(0) // exception_table_length
		code.u2(0) // attributes_count
		attrs = append(attrs, attr{name: p.utf8("Code"), data: code.buf})
	}
	if m.Signature != "" {
		attrs = append(attrs, signatureAttr(p, m.Signature))
	}
	if len(m.Exceptions) > 0 {
		ex := &writer{}
		ex.u2(uint16(len(m.Exceptions)))
		for _, e := range m.Exceptions {
			ex.u2(p.class(e))
		}
		attrs = append(attrs, attr{name: p.utf8("Exceptions"), data: ex.buf})
	}
	attrs = append(attrs, annotationAttrs(p, m.Annotations)...)
	writeAttrs(w, attrs)
}

type attr struct {
	name uint16
	data []byte
}

func writeAttrs(w *writer, attrs []attr) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.name)
		w.u4(uint32(len(a.data)))
		w.buf = append(w.buf, a.data...)
	}
}

func signatureAttr(p *pool, sig string) attr {
	return attr{name: p.utf8("Signature"), data: u2bytes(p.utf8(sig))}
}

func annotationAttrs(p *pool, anns []Annotation) []attr {
	var visible, invisible []Annotation
	for _, a := range anns {
		if a.Invisible {
			invisible = append(invisible, a)
		} else {
			visible = append(visible, a)
		}
	}
	var attrs []attr
	if len(visible) > 0 {
		attrs = append(attrs, attr{name: p.utf8("RuntimeVisibleAnnotations"), data: encodeAnnotations(p, visible)})
	}
	if len(invisible) > 0 {
		attrs = append(attrs, attr{name: p.utf8("RuntimeInvisibleAnnotations"), data: encodeAnnotations(p, invisible)})
	}
	return attrs
}

func encodeAnnotations(p *pool, anns []Annotation) []byte {
	w := &writer{}
	w.u2(uint16(len(anns)))
	for _, a := range anns {
		encodeAnnotation(w, p, a)
	}
	return w.buf
}

func encodeAnnotation(w *writer, p *pool, a Annotation) {
	w.u2(p.utf8(a.Desc))
	w.u2(uint16(len(a.Values)))
	for _, e := range a.Values {
		w.u2(p.utf8(e.Name))
		encodeElement(w, p, e.Value)
	}
}

func encodeElement(w *writer, p *pool, v any) {
	switch v := v.(type) {
	case string:
		w.u1('s')
		w.u2(p.utf8(v))
	case int32:
		w.u1('I')
		w.u2(p.integer(v))
	case int8:
		w.u1('B')
		w.u2(p.integer(int32(v)))
	case int16:
		w.u1('S')
		w.u2(p.integer(int32(v)))
	case uint16:
		w.u1('C')
		w.u2(p.integer(int32(v)))
	case bool:
		w.u1('Z')
		if v {
			w.u2(p.integer(1))
		} else {
			w.u2(p.integer(0))
		}
	case int64:
		w.u1('J')
		w.u2(p.constant(v))
	case float32:
		w.u1('F')
		w.u2(p.float(v))
	case float64:
		w.u1('D')
		w.u2(p.constant(v))
	case Enum:
		w.u1('e')
		w.u2(p.utf8(v.Desc))
		w.u2(p.utf8(v.Const))
	case ClassRef:
		w.u1('c')
		w.u2(p.utf8(string(v)))
	case Annotation:
		w.u1('@')
		encodeAnnotation(w, p, v)
	case []any:
		w.u1('[')
		w.u2(uint16(len(v)))
		for _, item := range v {
			encodeElement(w, p, item)
		}
	default:
		panic(fmt.Sprintf("classfiletest: unsupported element value %T", v))
	}
}

// pool deduplicates constant pool entries by their encoded form.
type pool struct {
	buf   []byte
	count uint16
	index map[string]uint16
}

func (p *pool) next() uint16 {
	return p.count + 1
}

func (p *pool) add(entry []byte, slots uint16) uint16 {
	key := string(entry)
	if i, ok := p.index[key]; ok {
		return i
	}
	i := p.next()
	p.buf = append(p.buf, entry...)
	p.count += slots
	p.index[key] = i
	return i
}

func (p *pool) utf8(s string) uint16 {
	w := &writer{}
	w.u1(1)
	enc := encodeModifiedUTF8(s)
	w.u2(uint16(len(enc)))
	w.buf = append(w.buf, enc...)
	return p.add(w.buf, 1)
}

func (p *pool) class(name string) uint16 {
	w := &writer{}
	w.u1(7)
	w.u2(p.utf8(name))
	return p.add(w.buf, 1)
}

func (p *pool) integer(n int32) uint16 {
	w := &writer{}
	w.u1(3)
	w.u4(uint32(n))
	return p.add(w.buf, 1)
}

func (p *pool) float(f float32) uint16 {
	w := &writer{}
	w.u1(4)
	w.u4(math.Float32bits(f))
	return p.add(w.buf, 1)
}

func (p *pool) constant(v any) uint16 {
	w := &writer{}
	switch v := v.(type) {
	case int32:
		return p.integer(v)
	case int64:
		w.u1(5)
		w.u4(uint32(uint64(v) >> 32))
		w.u4(uint32(v))
		return p.add(w.buf, 2)
	case float64:
		bits := math.Float64bits(v)
		w.u1(6)
		w.u4(uint32(bits >> 32))
		w.u4(uint32(bits))
		return p.add(w.buf, 2)
	case string:
		w.u1(8)
		w.u2(p.utf8(v))
		return p.add(w.buf, 1)
	default:
		panic(fmt.Sprintf("classfiletest: unsupported constant %T", v))
	}
}

func encodeModifiedUTF8(s string) []byte {
	var out []byte
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = append(out, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
		default:
			r -= 0x10000
			for _, u := range []rune{0xD800 + (r >> 10), 0xDC00 + (r & 0x3FF)} {
				out = append(out, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
			}
		}
	}
	return out
}

type writer struct {
	buf []byte
}

func (w *writer) u1(v byte) { w.buf = append(w.buf, v) }

func (w *writer) u2(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *writer) u4(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func u2bytes(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}
