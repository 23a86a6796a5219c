package rawelf

import "fmt"

// ErrMalformedHeader is returned when the ELF magic, header size, or
// phoff/phnum bounds don't check out.
type ErrMalformedHeader struct {
	Reason string
}

func (e *ErrMalformedHeader) Error() string {
	return fmt.Sprintf("rawelf: malformed header: %s", e.Reason)
}

// ErrUnsupportedClass is returned for anything other than ELFCLASS32/64.
type ErrUnsupportedClass struct {
	Class string
}

func (e *ErrUnsupportedClass) Error() string {
	return fmt.Sprintf("rawelf: unsupported ELF class %s", e.Class)
}

// ErrUnsupportedEndian is returned for anything other than little-endian.
type ErrUnsupportedEndian struct {
	Data string
}

func (e *ErrUnsupportedEndian) Error() string {
	return fmt.Sprintf("rawelf: unsupported ELF data encoding %s", e.Data)
}

// ErrUnsupportedMachine describes an e_machine that is not in the arch
// table this build of elfdyn was compiled with. Parse does not check the
// machine and never returns it; loader.Load reports an unsupported machine
// with its own loader.ErrUnsupportedMachine.
type ErrUnsupportedMachine struct {
	Machine string
}

func (e *ErrUnsupportedMachine) Error() string {
	return fmt.Sprintf("rawelf: unsupported machine %s", e.Machine)
}

// ErrTruncatedTable is returned when a table (program headers, a section,
// a dynamic array) claims a range outside the backing byte source.
type ErrTruncatedTable struct {
	Name string
}

func (e *ErrTruncatedTable) Error() string {
	return fmt.Sprintf("rawelf: truncated table %q", e.Name)
}

// ErrMissingDynamic is returned when a non-ET_REL image has no PT_DYNAMIC.
type ErrMissingDynamic struct{}

func (e *ErrMissingDynamic) Error() string {
	return "rawelf: missing PT_DYNAMIC segment"
}

// ErrInvalidDynamicEntry is returned when a required dynamic tag is absent
// or its value cannot be correlated to an in-image range.
type ErrInvalidDynamicEntry struct {
	Tag string
}

func (e *ErrInvalidDynamicEntry) Error() string {
	return fmt.Sprintf("rawelf: invalid or missing dynamic entry %s", e.Tag)
}
