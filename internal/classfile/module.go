package classfile

// Module is the declared structure of one class module. SuperName is empty
// for the root of the type hierarchy.
type Module struct {
	Major, Minor    uint16
	Access          uint16
	Name            string
	SuperName       string
	Interfaces      []string
	Signature       string
	Annotations     []Annotation
	TypeAnnotations []Annotation
	Fields          []Field
	Methods         []Method

	// Skipped holds attributes that were framed correctly but whose body
	// could not be decoded. Each wraps ErrMalformedEntry.
	Skipped []error
}

type Field struct {
	Access          uint16
	Name            string
	Descriptor      string
	Signature       string
	Annotations     []Annotation
	TypeAnnotations []Annotation
}

type Method struct {
	Access               uint16
	Name                 string
	Descriptor           string
	Signature            string
	Exceptions           []string
	Annotations          []Annotation
	TypeAnnotations      []Annotation
	ParameterAnnotations [][]Annotation
}

// Annotation is one annotation instance. Type annotations carry their
// target_info and type_path only implicitly: both are skipped while reading.
type Annotation struct {
	Descriptor string
	Elements   []Element
}

// ElementKind is the element_value tag.
type ElementKind byte

const (
	ElementByte       ElementKind = 'B'
	ElementChar       ElementKind = 'C'
	ElementDouble     ElementKind = 'D'
	ElementFloat      ElementKind = 'F'
	ElementInt        ElementKind = 'I'
	ElementLong       ElementKind = 'J'
	ElementShort      ElementKind = 'S'
	ElementBoolean    ElementKind = 'Z'
	ElementString     ElementKind = 's'
	ElementEnum       ElementKind = 'e'
	ElementClass      ElementKind = 'c'
	ElementAnnotation ElementKind = '@'
	ElementArray      ElementKind = '['
)

// Element is a named element_value. Name is empty for array members.
// Descriptor is the enum's declaring type for ElementEnum and the class
// literal's return descriptor for ElementClass.
type Element struct {
	Name       string
	Kind       ElementKind
	Descriptor string
	EnumConst  string
	Nested     *Annotation
	Values     []Element
}
