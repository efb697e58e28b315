package indexer

import "github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile"

const (
	constructorName       = "<init>"
	staticInitializerName = "<clinit>"
)

// visitModule records the declarations of m and queues every descriptor and
// signature it carries for the signature parser.
func visitModule(m *classfile.Module, s *Symbols) {
	s.ModuleName = m.Name
	s.TypeDeclarations.Add(m.Name)
	s.SuperTypes.Add(m.SuperName)
	for _, i := range m.Interfaces {
		s.SuperTypes.Add(i)
	}
	s.Pending.Add(m.Signature)
	visitAnnotations(s, m.Annotations)
	visitAnnotations(s, m.TypeAnnotations)

	for i := range m.Fields {
		f := &m.Fields[i]
		s.FieldDeclarations.Add(f.Name)
		s.Pending.Add(signatureOrDescriptor(f.Signature, f.Descriptor))
		visitAnnotations(s, f.Annotations)
		visitAnnotations(s, f.TypeAnnotations)
	}

	for i := range m.Methods {
		mt := &m.Methods[i]
		switch mt.Name {
		case constructorName:
			s.ConstructorDeclarations.Add(m.Name)
		case staticInitializerName:
		default:
			s.MethodDeclarations.Add(mt.Name)
		}
		s.Pending.Add(signatureOrDescriptor(mt.Signature, mt.Descriptor))
		for _, ex := range mt.Exceptions {
			s.TypeReferences.Add(ex)
		}
		visitAnnotations(s, mt.Annotations)
		visitAnnotations(s, mt.TypeAnnotations)
		for _, p := range mt.ParameterAnnotations {
			visitAnnotations(s, p)
		}
	}
}

func signatureOrDescriptor(sig, desc string) string {
	if sig != "" {
		return sig
	}
	return desc
}

// visitAnnotations walks annotations and their element values with an
// explicit work list, so nesting depth is limited only by memory.
func visitAnnotations(s *Symbols, anns []classfile.Annotation) {
	if len(anns) == 0 {
		return
	}
	work := make([][]classfile.Element, 0, len(anns))
	for i := range anns {
		s.Pending.Add(anns[i].Descriptor)
		work = append(work, anns[i].Elements)
	}
	for len(work) > 0 {
		els := work[len(work)-1]
		work = work[:len(work)-1]
		for i := range els {
			e := &els[i]
			switch e.Kind {
			case classfile.ElementEnum, classfile.ElementClass:
				s.Pending.Add(e.Descriptor)
			case classfile.ElementAnnotation:
				if e.Nested != nil {
					s.Pending.Add(e.Nested.Descriptor)
					work = append(work, e.Nested.Elements)
				}
			case classfile.ElementArray:
				work = append(work, e.Values)
			}
		}
	}
}
