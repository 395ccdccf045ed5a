package scripts

import (
	"strconv"
	"strings"
)

// CompareVersions compares dotted versions numerically, treating missing
// or non-numeric components as zero. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := max(len(as), len(bs))

	for i := 0; i < n; i++ {
		av, bv := versionPart(as, i), versionPart(bs, i)
		switch {
		case av > bv:
			return 1
		case av < bv:
			return -1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	p := strings.TrimSpace(parts[i])
	end := 0
	for end < len(p) && p[end] >= '0' && p[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(p[:end])
	if err != nil {
		return 0
	}
	return v
}
