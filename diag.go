package gcnasm

import "fmt"

// Severity classifies a Diagnostic. Warnings never abort an assemble
// or disassemble call; Errors cause it to return good=false; Fatal
// errors abort the call outright (see FatalError).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// A Diagnostic is one non-fatal message produced during assembly or
// disassembly, carrying the position chain it occurred at.
type Diagnostic struct {
	Position *PositionChain
	Severity Severity
	Message  string
}

// A Sink collects diagnostics in source order. It is append-only and
// owned by a single writer per translation unit (no global mutable
// state; a Sink is constructed fresh for every Assemble/Disassemble
// call).
type Sink struct {
	Files *FileTable
	diags []Diagnostic
}

// NewSink returns an empty diagnostic sink bound to files for
// position formatting.
func NewSink(files *FileTable) *Sink {
	return &Sink{Files: files}
}

// Warning appends a warning diagnostic.
func (s *Sink) Warning(pos *PositionChain, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{pos, SeverityWarning, fmt.Sprintf(format, args...)})
}

// Error appends an error diagnostic.
func (s *Sink) Error(pos *PositionChain, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{pos, SeverityError, fmt.Sprintf(format, args...)})
}

// Diagnostics returns all diagnostics emitted so far, in source order.
func (s *Sink) Diagnostics() []Diagnostic {
	return s.diags
}

// Good reports whether no error-severity diagnostic has been emitted.
// A translation unit with only warnings is still Good.
func (s *Sink) Good() bool {
	for _, d := range s.diags {
		if d.Severity == SeverityError {
			return false
		}
	}
	return true
}

// ErrorCount returns the number of error-severity diagnostics emitted.
func (s *Sink) ErrorCount() int {
	n := 0
	for _, d := range s.diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// A FatalError aborts the current translation unit (macro recursion
// depth exceeded, include file unopenable, out of memory). It is
// returned as an error out of the Assemble/Disassemble call rather
// than appended to the Sink, which has only warning and error
// severities.
type FatalError struct {
	Position *PositionChain
	Message  string
}

func (e *FatalError) Error() string {
	return e.Message
}
