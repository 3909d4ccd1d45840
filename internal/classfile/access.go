package classfile

// Access flags as defined by the JVM specification. Several bits are
// overloaded between classes, fields and methods.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020 // class
	AccSynchronized = 0x0020 // method
	AccVolatile     = 0x0040 // field
	AccBridge       = 0x0040 // method
	AccTransient    = 0x0080 // field
	AccVarargs      = 0x0080 // method
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// MajorVersion extracts the class file major version from a packed version
// as passed to ClassVisitor.Visit.
func MajorVersion(version int) int {
	return version & 0xFFFF
}

// IsBridge reports whether method access flags carry the bridge marker.
func IsBridge(access int) bool {
	return access&AccBridge != 0
}
