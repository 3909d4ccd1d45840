package classfile

import (
	"fmt"
	"strings"
)

// MethodDescriptor is a parsed method descriptor. Types are kept in
// descriptor form, e.g. "I", "[Ljava/lang/String;".
type MethodDescriptor struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits a descriptor such as "(ILjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodDescriptor{}, fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
	}
	var md MethodDescriptor
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldTypeLen(desc[i:])
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return MethodDescriptor{}, fmt.Errorf("%w: unterminated method descriptor %q", ErrMalformed, desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := fieldTypeLen(ret)
		if err != nil || n != len(ret) {
			return MethodDescriptor{}, fmt.Errorf("%w: return type of %q", ErrMalformed, desc)
		}
	}
	md.Return = ret
	return md, nil
}

func fieldTypeLen(s string) (int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims == len(s) {
		return 0, fmt.Errorf("%w: truncated type %q", ErrMalformed, s)
	}
	switch s[dims] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return dims + 1, nil
	case 'L':
		end := strings.IndexByte(s[dims:], ';')
		if end < 0 {
			return 0, fmt.Errorf("%w: unterminated class type %q", ErrMalformed, s)
		}
		return dims + end + 1, nil
	default:
		return 0, fmt.Errorf("%w: bad type %q", ErrMalformed, s)
	}
}

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// JavaName renders a field type descriptor as a source-level type name:
// "[Ljava/lang/String;" becomes "java.lang.String[]".
func JavaName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	elem := desc[dims:]
	var name string
	switch {
	case len(elem) == 1 && primitiveNames[elem[0]] != "":
		name = primitiveNames[elem[0]]
	case strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";"):
		name = strings.ReplaceAll(elem[1:len(elem)-1], "/", ".")
	default:
		name = elem
	}
	return name + strings.Repeat("[]", dims)
}
