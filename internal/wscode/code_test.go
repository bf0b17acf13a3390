package wscode

import (
	"errors"
	"sort"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		path    string
		dashed  string
		wantErr bool
	}{
		{"920-076175-303123-000000-000000-000000", "920.076175.303123", "920-076175-303123", false},
		{"920.076175.303123", "920.076175.303123", "920-076175-303123", false},
		{"100-000000", "100", "100", false},
		{" 920-076175 ", "920.076175", "920-076175", false},
		{"", "", "", true},
		{"920--076175", "", "", true},
		{"920-07a175", "", "", true},
		{"000000-000000", "", "", true},
	}

	for _, tt := range tests {
		c, err := Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse(%q) = %v, %v; want ErrMalformed", tt.in, c, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if c.Path() != tt.path {
			t.Errorf("Parse(%q).Path() = %q, want %q", tt.in, c.Path(), tt.path)
		}
		if c.String() != tt.dashed {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, c.String(), tt.dashed)
		}
	}
}

func TestTrim(t *testing.T) {
	if got := Trim("920-076175-303123-000000-000000"); got != "920-076175-303123" {
		t.Errorf("Trim = %q", got)
	}
	if got := Trim("920-000000-303123"); got != "920-000000-303123" {
		t.Errorf("Trim removed an inner group: %q", got)
	}
}

func TestUnknownAndDepth(t *testing.T) {
	c := MustParse("999-000000")
	if !c.IsUnknown() {
		t.Error("999 code should be unknown")
	}
	if MustParse("9990-1").IsUnknown() {
		t.Error("9990 is not in the 999 tree")
	}
	d := MustParse("920-076175-303123")
	if d.Depth() != 3 {
		t.Errorf("Depth = %d, want 3", d.Depth())
	}
	if d.Parent() != MustParse("920-076175") {
		t.Errorf("Parent = %v", d.Parent())
	}
	if !MustParse("920").Parent().IsZero() {
		t.Error("root parent should be zero")
	}
}

func TestIsAncestor(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"920", "920-076175", true},
		{"920-076175", "920-076175-303123", true},
		{"920-076175", "920-076175", false},
		{"920-07617", "920-076175", false}, // prefix of a label, not of the path
		{"920-076175-303123", "920-076175", false},
		{"920-076175", "920-076176-000100", false},
	}
	for _, tt := range tests {
		if got := IsAncestor(MustParse(tt.a), MustParse(tt.b)); got != tt.want {
			t.Errorf("IsAncestor(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if !IsDescendantOrEqual(MustParse("920-076175"), MustParse("920-076175")) {
		t.Error("a code is descendant-or-equal of itself")
	}
}

func TestCompare(t *testing.T) {
	codes := []Code{
		MustParse("920-076175-303123"),
		MustParse("920-076175"),
		MustParse("920-076175-303123-000100"),
		MustParse("920-076175-0999"),
		MustParse("920-076176"),
		MustParse("920-076175-303123-099999"),
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Compare(codes[j]) < 0 })

	want := []string{
		"920-076175",
		"920-076175-0999",
		"920-076175-303123",
		"920-076175-303123-000100",
		"920-076175-303123-099999",
		"920-076176",
	}
	for i, c := range codes {
		if c.String() != want[i] {
			t.Errorf("sorted[%d] = %s, want %s", i, c, want[i])
		}
	}
}

func TestIsUpstream(t *testing.T) {
	// point partway up 920-076175, above the entry of tributary 303123
	pointWS := MustParse("920-076175")
	pointLocal := MustParse("920-076175-400000")

	tests := []struct {
		name      string
		ws, local string
		want      bool
	}{
		{"tributary above point", "920-076175-500000", "920-076175-500000", true},
		{"nested tributary above point", "920-076175-500000-010000", "920-076175-500000-010000", true},
		{"tributary below point", "920-076175-303123", "920-076175-303123", false},
		{"nested under point local", "920-076175-400000-100000", "920-076175-400000-100000", false},
		{"same channel at point", "920-076175", "920-076175-400000", true},
		{"same channel above point", "920-076175", "920-076175-600000", true},
		{"same channel below point", "920-076175", "920-076175-100000", false},
		{"other watershed", "920-076176-600000", "920-076176-600000", false},
		{"parent watershed", "920", "920-076175", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUpstream(pointWS, pointLocal, MustParse(tt.ws), MustParse(tt.local))
			if got != tt.want {
				t.Errorf("IsUpstream(%s, %s, %s, %s) = %v, want %v",
					pointWS, pointLocal, tt.ws, tt.local, got, tt.want)
			}
		})
	}
}

func TestIsUpstreamMouthSelectsAllDescendants(t *testing.T) {
	point := MustParse("920-076175")
	all := []string{
		"920-076175",
		"920-076175-100000",
		"920-076175-303123",
		"920-076175-303123-000500",
		"920-076175-900000",
		"920-076176",
		"920",
		"930-000100",
	}

	var selected, descendants int
	for _, s := range all {
		c := MustParse(s)
		if IsUpstream(point, point, c, c) {
			selected++
		}
		if point.Contains(c) {
			descendants++
		}
	}
	if selected != descendants || selected != 5 {
		t.Errorf("selected %d, descendants %d, want 5", selected, descendants)
	}
}

func TestIsUpstreamZeroCodes(t *testing.T) {
	c := MustParse("920")
	if IsUpstream(Code{}, c, c, c) {
		t.Error("zero point code must never select")
	}
	if IsUpstream(c, c, Code{}, c) {
		t.Error("zero candidate code must never be selected")
	}
}
