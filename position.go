package gcnasm

import "fmt"

// A FileRef is an opaque handle into a file-identifier table. Keeping
// it as a small integer (rather than a string) lets position chains
// be copied cheaply as they propagate through macro expansion.
type FileRef int

// FileTable interns file names/paths to FileRef handles.
type FileTable struct {
	names []string
	index map[string]FileRef
}

// NewFileTable returns an empty file table.
func NewFileTable() *FileTable {
	return &FileTable{index: make(map[string]FileRef)}
}

// Intern returns the FileRef for name, assigning a new one if needed.
func (t *FileTable) Intern(name string) FileRef {
	if ref, ok := t.index[name]; ok {
		return ref
	}
	ref := FileRef(len(t.names))
	t.names = append(t.names, name)
	t.index[name] = ref
	return ref
}

// Name returns the file name associated with ref.
func (t *FileTable) Name(ref FileRef) string {
	if int(ref) < 0 || int(ref) >= len(t.names) {
		return "<unknown>"
	}
	return t.names[ref]
}

// A Position is a single (file, line, column) triple.
type Position struct {
	File   FileRef
	Line   int
	Column int
}

// A PositionChain records the position at which a character was
// written plus, for characters produced by macro/rept/irp expansion
// or .include, the chain of expansion sites that produced it. The
// innermost (most specific) position is Head; Parent is nil at the
// top of the chain.
type PositionChain struct {
	Head   Position
	Reason string // e.g. "in expansion of macro 'FOO'", "in .rept", "in .include"
	Parent *PositionChain
}

// Push returns a new chain with pos prepended as the new Head and the
// receiver pushed down as Parent, annotated with reason.
func (c *PositionChain) Push(pos Position, reason string) *PositionChain {
	return &PositionChain{Head: pos, Reason: reason, Parent: c}
}

// Format renders the chain from innermost to outermost, one frame per
// line, using files to resolve FileRef to a printable name. Each
// expansion-site line carries the Reason of the frame just inside it.
func (c *PositionChain) Format(files *FileTable) string {
	if c == nil {
		return "<unknown position>"
	}
	s := fmt.Sprintf("%s:%d:%d", files.Name(c.Head.File), c.Head.Line, c.Head.Column+1)
	for q := c; q.Parent != nil; q = q.Parent {
		p := q.Parent
		s += fmt.Sprintf("\n\t%s (%s:%d:%d)", q.Reason, files.Name(p.Head.File), p.Head.Line, p.Head.Column+1)
	}
	return s
}
