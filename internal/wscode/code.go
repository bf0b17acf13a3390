package wscode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code is a hierarchical watershed code held as a dotted tree path
// (920.076175.303123). Each label is the position, measured along the parent
// channel, at which the child channel enters. The zero value is the empty
// code and is never a valid location code.
//
// Code is comparable with == and usable as a map key.
type Code struct {
	path string
}

// ErrMalformed is wrapped by every Parse failure
var ErrMalformed = errors.New("malformed watershed code")

// unknownRoot prefixes codes of features that are not on the network
const unknownRoot = "999"

// Parse reads a code in either the raw dashed FWA form
// (920-076175-303123-000000-...) or the dotted path form. Trailing all-zero
// labels are trimmed.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Code{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	sep := "."
	if strings.Contains(s, "-") {
		sep = "-"
	}
	labels := strings.Split(s, sep)

	for i, l := range labels {
		if l == "" {
			return Code{}, fmt.Errorf("%w %q: empty label at position %d", ErrMalformed, s, i)
		}
		for _, r := range l {
			if r < '0' || r > '9' {
				return Code{}, fmt.Errorf("%w %q: non-numeric label %q", ErrMalformed, s, l)
			}
		}
	}

	// drop the trailing 000000 groups
	n := len(labels)
	for n > 1 && isZeroLabel(labels[n-1]) {
		n--
	}
	labels = labels[:n]
	if isZeroLabel(labels[0]) {
		return Code{}, fmt.Errorf("%w %q: zero root label", ErrMalformed, s)
	}

	return Code{path: strings.Join(labels, ".")}, nil
}

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Trim removes trailing -000000 groups from a raw dashed code, leaving the
// dashed form intact.
func Trim(raw string) string {
	for strings.HasSuffix(raw, "-000000") {
		raw = strings.TrimSuffix(raw, "-000000")
	}
	return raw
}

func isZeroLabel(l string) bool {
	return strings.Trim(l, "0") == ""
}

// IsZero reports whether c is the empty code.
func (c Code) IsZero() bool {
	return c.path == ""
}

// IsUnknown reports whether c belongs to the 999 (not on network) tree.
func (c Code) IsUnknown() bool {
	return c.path == unknownRoot || strings.HasPrefix(c.path, unknownRoot+".")
}

// Path returns the dotted path form, as stored.
func (c Code) Path() string {
	return c.path
}

// String returns the dashed FWA form without trailing zero groups.
func (c Code) String() string {
	return strings.ReplaceAll(c.path, ".", "-")
}

// Labels returns the path labels from root to leaf.
func (c Code) Labels() []string {
	if c.path == "" {
		return nil
	}
	return strings.Split(c.path, ".")
}

// Depth returns the number of labels in the path.
func (c Code) Depth() int {
	if c.path == "" {
		return 0
	}
	return strings.Count(c.path, ".") + 1
}

// Parent returns the code one level up, or the zero code for a root.
func (c Code) Parent() Code {
	i := strings.LastIndex(c.path, ".")
	if i < 0 {
		return Code{}
	}
	return Code{path: c.path[:i]}
}

// IsAncestorOf reports whether d is a strict descendant of c.
func (c Code) IsAncestorOf(d Code) bool {
	if c.path == "" || len(d.path) <= len(c.path) {
		return false
	}
	return strings.HasPrefix(d.path, c.path) && d.path[len(c.path)] == '.'
}

// Contains reports whether d equals c or descends from it (ltree <@).
func (c Code) Contains(d Code) bool {
	return c == d || c.IsAncestorOf(d)
}

// Compare orders codes label by label, numerically. A code sorts before its
// own descendants. Returns -1, 0 or 1.
func (c Code) Compare(d Code) int {
	a, b := c.Labels(), d.Labels()
	for i := 0; i < len(a) && i < len(b); i++ {
		if r := compareLabel(a[i], b[i]); r != 0 {
			return r
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func compareLabel(a, b string) int {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// IsAncestor reports whether b's path is a strict descendant of a's path.
func IsAncestor(a, b Code) bool {
	return a.IsAncestorOf(b)
}

// IsUpstream reports whether a feature coded (candWS, candLocal) lies
// hydrologically upstream of a location coded (pointWS, pointLocal).
//
// The candidate must always sit in the point's watershed tree. When the
// point's codes are equal it is at the mouth of its watershed and the whole
// tree qualifies. Otherwise the point is partway up its channel: tributaries
// entering above it (watershed code greater than the point's local code, but
// not nested under it) qualify, as do side channels sharing the point's
// watershed code with a local code at or above the point's.
func IsUpstream(pointWS, pointLocal, candWS, candLocal Code) bool {
	if pointWS.IsZero() || pointLocal.IsZero() || candWS.IsZero() {
		return false
	}
	if !pointWS.Contains(candWS) {
		return false
	}
	if pointWS == pointLocal {
		return true
	}
	if candWS.Compare(pointLocal) > 0 && !pointLocal.Contains(candWS) {
		return true
	}
	return candWS == pointWS && !candLocal.IsZero() && candLocal.Compare(pointLocal) >= 0
}

// IsDescendantOrEqual reports whether b equals a or descends from it.
func IsDescendantOrEqual(a, b Code) bool {
	return a.Contains(b)
}
