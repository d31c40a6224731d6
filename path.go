package arbor

import (
	"strconv"
	"strings"
)

// Path is an immutable breadcrumb of field names and list positions leading to
// a node. It is only used to describe where a translation failed.
type Path struct {
	segs []string
}

// Root is the empty path.
var Root = Path{}

func (p Path) Extend(name string) Path {
	return Path{segs: append(p.segs[:len(p.segs):len(p.segs)], name)}
}

func (p Path) Index(i int) Path {
	return p.Extend("[" + strconv.Itoa(i) + "]")
}

func (p Path) prepend(prefix Path) Path {
	if len(prefix.segs) == 0 {
		return p
	}
	segs := make([]string, 0, len(prefix.segs)+len(p.segs))
	segs = append(segs, prefix.segs...)
	segs = append(segs, p.segs...)
	return Path{segs: segs}
}

func (p Path) Len() int { return len(p.segs) }

func (p Path) IsRoot() bool { return len(p.segs) == 0 }

func (p Path) Segments() []string {
	return append([]string(nil), p.segs...)
}

func (p Path) String() string {
	if len(p.segs) == 0 {
		return "<root>"
	}
	var buf strings.Builder
	for i, seg := range p.segs {
		if i > 0 && !strings.HasPrefix(seg, "[") {
			buf.WriteByte('.')
		}
		buf.WriteString(seg)
	}
	return buf.String()
}
