// Package versioning parses and compares the semantic versions stamped on
// datasets and manifests.
package versioning

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Comparison int

const (
	ComparisonUnknown Comparison = iota
	ComparisonLess
	ComparisonEqual
	ComparisonGreater
)

var semverPattern = regexp.MustCompile(`^(?:[vV])?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?$`)

type identifier struct {
	raw     string
	numeric bool
	num     int
}

// Version is a parsed SemVer 2.0.0 version.
type Version struct {
	major, minor, patch int
	pre                 []identifier
	build               string
}

// Parse parses a semantic version. A leading "v" is accepted and dropped.
func Parse(input string) (*Version, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, errors.New("empty version")
	}
	m := semverPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, fmt.Errorf("invalid semver %q", input)
	}

	v := &Version{}
	for i, dst := range []*int{&v.major, &v.minor, &v.patch} {
		seg := m[i+1]
		if len(seg) > 1 && strings.HasPrefix(seg, "0") {
			return nil, fmt.Errorf("invalid semver %q: leading zeros not allowed", input)
		}
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("segment '%s': %w", seg, err)
		}
		*dst = n
	}

	if m[4] != "" {
		for _, part := range strings.Split(m[4], ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid prerelease identifier: empty segment")
			}
			if isNumeric(part) {
				if len(part) > 1 && strings.HasPrefix(part, "0") {
					return nil, fmt.Errorf("invalid prerelease identifier: leading zeros not allowed")
				}
				n, err := strconv.Atoi(part)
				if err != nil {
					return nil, fmt.Errorf("invalid prerelease identifier '%s': %w", part, err)
				}
				v.pre = append(v.pre, identifier{raw: part, numeric: true, num: n})
				continue
			}
			v.pre = append(v.pre, identifier{raw: part})
		}
	}
	if m[5] != "" {
		for _, part := range strings.Split(m[5], ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid build identifier: empty segment")
			}
		}
		v.build = m[5]
	}
	return v, nil
}

// Canonical returns the normalized form of a version string (no "v" prefix).
func Canonical(input string) (string, error) {
	v, err := Parse(input)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// String renders the version without a "v" prefix.
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
	if len(v.pre) > 0 {
		parts := make([]string, len(v.pre))
		for i, id := range v.pre {
			parts[i] = id.raw
		}
		s += "-" + strings.Join(parts, ".")
	}
	if v.build != "" {
		s += "+" + v.build
	}
	return s
}

// Major returns the major component.
func (v *Version) Major() int { return v.major }

// Compare orders two version strings by SemVer precedence (build metadata ignored).
func Compare(a, b string) (Comparison, error) {
	av, err := Parse(a)
	if err != nil {
		return ComparisonUnknown, err
	}
	bv, err := Parse(b)
	if err != nil {
		return ComparisonUnknown, err
	}
	return compareVersions(av, bv), nil
}

func compareVersions(a, b *Version) Comparison {
	for _, pair := range [][2]int{{a.major, b.major}, {a.minor, b.minor}, {a.patch, b.patch}} {
		if c := compareInt(pair[0], pair[1]); c != ComparisonEqual {
			return c
		}
	}

	switch {
	case len(a.pre) == 0 && len(b.pre) == 0:
		return ComparisonEqual
	case len(a.pre) == 0:
		return ComparisonGreater
	case len(b.pre) == 0:
		return ComparisonLess
	}

	for i := 0; i < len(a.pre) && i < len(b.pre); i++ {
		ai, bi := a.pre[i], b.pre[i]
		switch {
		case ai.numeric && bi.numeric:
			if c := compareInt(ai.num, bi.num); c != ComparisonEqual {
				return c
			}
		case ai.numeric:
			return ComparisonLess
		case bi.numeric:
			return ComparisonGreater
		default:
			if c := strings.Compare(ai.raw, bi.raw); c != 0 {
				if c < 0 {
					return ComparisonLess
				}
				return ComparisonGreater
			}
		}
	}
	return compareInt(len(a.pre), len(b.pre))
}

func compareInt(a, b int) Comparison {
	switch {
	case a < b:
		return ComparisonLess
	case a > b:
		return ComparisonGreater
	default:
		return ComparisonEqual
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
