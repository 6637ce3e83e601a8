package versioning

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.2.3", want: "1.2.3"},
		{in: "v2.0.0", want: "2.0.0"},
		{in: " 0.1.0-rc.1+build.7 ", want: "0.1.0-rc.1+build.7"},
		{in: "01.2.3", wantErr: true},
		{in: "1.2", wantErr: true},
		{in: "", wantErr: true},
		{in: "1.0.0-01", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Canonical(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Canonical(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want Comparison
	}{
		{"1.0.0", "1.0.0", ComparisonEqual},
		{"1.0.0", "1.0.1", ComparisonLess},
		{"2.0.0", "1.9.9", ComparisonGreater},
		{"1.0.0-alpha", "1.0.0", ComparisonLess},
		{"1.0.0-alpha.1", "1.0.0-alpha.beta", ComparisonLess},
		{"1.0.0-rc.2", "1.0.0-rc.10", ComparisonLess},
		{"1.0.0+a", "1.0.0+b", ComparisonEqual},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare(%q, %q) error: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	if _, err := Compare("bad", "1.0.0"); err == nil {
		t.Error("expected error for invalid version")
	}
}
