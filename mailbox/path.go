package mailbox

import "strings"

// HierarchyDelimiter separates mailbox path segments.
const HierarchyDelimiter = "/"

// Path identifies a mailbox inside the hierarchy. The first segment is
// resolved against configured mount points, with the user home folder as
// fallback.
type Path string

// Root returns the first segment of the path and the remainder (empty when
// the path has a single segment).
func (p Path) Root() (string, string) {
	index := strings.Index(string(p), HierarchyDelimiter)
	if index < 0 {
		return string(p), ""
	}
	return string(p)[:index], string(p)[index+1:]
}

func (p Path) IsEmpty() bool {
	return p == ""
}

// Join appends a segment to the path.
func (p Path) Join(name string) Path {
	if p.IsEmpty() {
		return Path(name)
	}
	return Path(string(p) + HierarchyDelimiter + name)
}

// Name returns the last segment of the path.
func (p Path) Name() string {
	index := strings.LastIndex(string(p), HierarchyDelimiter)
	if index < 0 {
		return string(p)
	}
	return string(p)[index+1:]
}

func (p Path) String() string {
	return string(p)
}
