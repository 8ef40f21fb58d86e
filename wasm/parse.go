package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-bench/wasm/internal/binary"
)

// Parsing errors returned by Parse.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")

	// ErrInvalid marks a binary that decodes but breaks a validation rule
	// (index bounds, duplicate exports, start function signature).
	ErrInvalid = errors.New("invalid module")
)

// IsMalformed reports whether err describes a binary that cannot be decoded,
// as opposed to one that decodes but fails validation.
func IsMalformed(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalid)
}

// Parse decodes the structure of a WebAssembly binary module and checks the
// rules that do not require decoding function bodies.
func Parse(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", 0, err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", 0, err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	p := &parser{m: &Module{Size: len(data)}}
	var lastOrder int

	for r.Len() > 0 {
		offset := r.Position()
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", 0, err)
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, r.WrapError("section header", 0, fmt.Errorf("unknown section ID: 0x%02x", id))
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("%s section appears out of order", SectionName(id))
			}
			lastOrder = order
		}

		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", 0, err)
		}
		base := r.Position()
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError(SectionName(id)+" section", 0, err)
		}

		p.m.Sections = append(p.m.Sections, Section{ID: id, Offset: offset, Size: int(size)})

		sr := binary.NewReader(payload)
		if err := p.parseSection(id, sr); err != nil {
			return nil, sr.WrapError(SectionName(id)+" section", base, err)
		}
		if sr.Len() != 0 {
			return nil, sr.WrapError(SectionName(id)+" section", base,
				fmt.Errorf("section size mismatch: %d trailing bytes", sr.Len()))
		}
	}

	m := p.m
	if len(m.Funcs) != m.CodeCount {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d", len(m.Funcs), m.CodeCount)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return m, nil
}

// Validate reports whether data is a structurally valid module.
func Validate(data []byte) error {
	_, err := Parse(data)
	return err
}

// sectionOrder returns the canonical ordering for a section ID, 0 for unknown IDs.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 0
	}
}

type parser struct {
	m *Module

	// definitions per index space, imports included
	tables   int
	memories int
	globals  int
	tags     int
}

func (p *parser) parseSection(id byte, r *binary.Reader) error {
	switch id {
	case SectionCustom:
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		p.m.CustomSections = append(p.m.CustomSections, name)
		return r.Skip(r.Len())
	case SectionType:
		return p.parseTypes(r)
	case SectionImport:
		return p.parseImports(r)
	case SectionFunction:
		return p.parseFunctions(r)
	case SectionExport:
		return p.parseExports(r)
	case SectionStart:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		p.m.Start = &idx
		return nil
	case SectionCode:
		return p.parseCode(r)
	case SectionTable:
		return p.countAndSkip(r, &p.tables)
	case SectionMemory:
		return p.countAndSkip(r, &p.memories)
	case SectionGlobal:
		return p.countAndSkip(r, &p.globals)
	case SectionTag:
		return p.countAndSkip(r, &p.tags)
	default:
		// element, data and data count are framed only
		return r.Skip(r.Len())
	}
}

func (p *parser) countAndSkip(r *binary.Reader, counter *int) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	*counter += int(count)
	return r.Skip(r.Len())
}

func (p *parser) parseTypes(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	types := make([]FuncType, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch form {
		case FuncTypeByte:
			ft, err := readFuncType(r)
			if err != nil {
				return fmt.Errorf("type %d: %w", i, err)
			}
			types = append(types, ft)
		case RecTypeByte, SubTypeByte, SubFinalByte, StructTypeByte, ArrayTypeByte:
			p.m.TypesIncomplete = true
			return r.Skip(r.Len())
		default:
			return fmt.Errorf("type %d: unsupported type form 0x%02x", i, form)
		}
	}
	p.m.Types = types
	return nil
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	params, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Len() {
		return nil, fmt.Errorf("value type count %d exceeds section", count)
	}
	out := make([]ValType, count)
	for i := range out {
		out[i], err = readValType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return ValType(b), nil
	case ValRefNull, ValRef:
		if _, err := r.ReadS64(); err != nil {
			return 0, err
		}
		return ValType(b), nil
	default:
		// abstract GC heap type shorthands (0x69..0x74)
		if b >= 0x69 && b <= 0x74 {
			return ValType(b), nil
		}
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
}

func readLimits(r *binary.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flags > LimitsHasMax|LimitsShared|LimitsMemory64 {
		return fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	read := func() (uint64, error) {
		if flags&LimitsMemory64 != 0 {
			return r.ReadU64()
		}
		v, err := r.ReadU32()
		return uint64(v), err
	}
	minVal, err := read()
	if err != nil {
		return err
	}
	if flags&LimitsHasMax != 0 {
		maxVal, err := read()
		if err != nil {
			return err
		}
		if minVal > maxVal {
			return fmt.Errorf("limits min (%d) exceeds max (%d)", minVal, maxVal)
		}
	}
	return nil
}

func (p *parser) parseImports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	imports := make([]Import, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			imp.TypeIdx, err = r.ReadU32()
		case KindTable:
			if _, err = readValType(r); err == nil {
				err = readLimits(r)
			}
			p.tables++
		case KindMemory:
			err = readLimits(r)
			p.memories++
		case KindGlobal:
			if _, err = readValType(r); err == nil {
				var mut byte
				if mut, err = r.ReadByte(); err == nil && mut > 1 {
					err = fmt.Errorf("invalid global mutability 0x%02x", mut)
				}
			}
			p.globals++
		case KindTag:
			var attr byte
			if attr, err = r.ReadByte(); err == nil {
				if attr != 0 {
					err = fmt.Errorf("invalid tag attribute 0x%02x", attr)
				} else {
					imp.TypeIdx, err = r.ReadU32()
				}
			}
			p.tags++
		default:
			return fmt.Errorf("import %s.%s: unknown import kind 0x%02x", module, name, kind)
		}
		if err != nil {
			return fmt.Errorf("import %s.%s: %w", module, name, err)
		}
		imports = append(imports, imp)
	}
	p.m.Imports = imports
	return nil
}

func (p *parser) parseFunctions(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	funcs := make([]uint32, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		funcs = append(funcs, idx)
	}
	p.m.Funcs = funcs
	return nil
}

func (p *parser) parseExports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	exports := make([]Export, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindTag {
			return fmt.Errorf("export %q: invalid export kind 0x%02x", name, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		exports = append(exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	p.m.Exports = exports
	return nil
}

func (p *parser) parseCode(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if size == 0 {
			return fmt.Errorf("function body %d is empty", i)
		}
		if err := r.Skip(int(size)); err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
	}
	p.m.CodeCount = int(count)
	return nil
}

func (p *parser) validate() error {
	m := p.m

	if !m.TypesIncomplete {
		numTypes := uint32(len(m.Types))
		for i, typeIdx := range m.Funcs {
			if typeIdx >= numTypes {
				return fmt.Errorf("function %d references invalid type index %d", i, typeIdx)
			}
		}
		for _, imp := range m.Imports {
			if (imp.Kind == KindFunc || imp.Kind == KindTag) && imp.TypeIdx >= numTypes {
				return fmt.Errorf("import %s.%s references invalid type index %d", imp.Module, imp.Name, imp.TypeIdx)
			}
		}
	}

	numFuncs := uint32(m.NumFuncs())
	seen := make(map[string]struct{}, len(m.Exports))
	for _, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}

		var limit int
		switch exp.Kind {
		case KindFunc:
			limit = int(numFuncs)
		case KindTable:
			limit = p.tables
		case KindMemory:
			limit = p.memories
		case KindGlobal:
			limit = p.globals
		case KindTag:
			limit = p.tags
		}
		if int(exp.Idx) >= limit {
			return fmt.Errorf("export %q references invalid %s index %d", exp.Name, KindName(exp.Kind), exp.Idx)
		}
	}

	if m.Start != nil {
		if *m.Start >= numFuncs {
			return fmt.Errorf("start function index %d exceeds function count %d", *m.Start, numFuncs)
		}
		if sig, ok := m.FuncSignature(*m.Start); ok && (len(sig.Params) != 0 || len(sig.Results) != 0) {
			return fmt.Errorf("start function must have type () -> (), got %s", sig)
		}
	}

	return nil
}
