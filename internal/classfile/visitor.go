package classfile

// ClassVisitor receives the declaration-level structure of one class file in
// file order: Visit, then each method, then the class annotations, then
// VisitEnd. Class annotations live in the attribute table that follows the
// methods, so visitors must not assume they arrive first.
type ClassVisitor interface {
	// Visit reports the class header. version packs the minor version in the
	// high 16 bits and the major version in the low 16 bits. superName is
	// empty only for java/lang/Object and module-info.
	Visit(version, access int, name, superName string, interfaces []string)

	// VisitMethod reports a method declaration. signature is empty when the
	// method has no generic Signature attribute. A nil MethodVisitor skips
	// the method's annotations.
	VisitMethod(access int, name, desc, signature string, exceptions []string) MethodVisitor

	// VisitAnnotation reports a class annotation. A nil AnnotationVisitor
	// skips the annotation's element values.
	VisitAnnotation(desc string, visible bool) AnnotationVisitor

	VisitEnd()
}

// MethodVisitor receives the annotations of a single method.
type MethodVisitor interface {
	VisitAnnotation(desc string, visible bool) AnnotationVisitor
	VisitEnd()
}

// AnnotationVisitor receives the constant element values of one annotation.
// Values are int8, uint16, float64, float32, int32, int64, int16, bool or
// string, matching the element tag. Enum, class, nested annotation and array
// elements are skipped.
type AnnotationVisitor interface {
	Visit(name string, value any)
	VisitEnd()
}
