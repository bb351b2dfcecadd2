package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// IsValid reports whether s is a plain MAJOR.MINOR.PATCH version string.
func IsValid(s string) bool {
	return versionRegex.MatchString(s)
}

// Compare returns -1, 0 or 1 ordering a and b numerically per component.
// Both inputs must already be valid.
func Compare(a, b string) int {
	pa := parse(a)
	pb := parse(b)
	for i := 0; i < 3; i++ {
		if pa[i] < pb[i] {
			return -1
		}
		if pa[i] > pb[i] {
			return 1
		}
	}
	return 0
}

func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("version %q is not MAJOR.MINOR.PATCH", s)
	}
	return nil
}

// BumpPatch returns s with its patch component incremented.
func BumpPatch(s string) (string, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	p := parse(s)
	return fmt.Sprintf("%d.%d.%d", p[0], p[1], p[2]+1), nil
}

func parse(s string) [3]int {
	var out [3]int
	parts := strings.SplitN(s, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(parts[i])
		out[i] = n
	}
	return out
}
