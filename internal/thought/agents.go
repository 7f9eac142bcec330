package thought

import (
	"strings"
)

// DetectActive scans raw left to right, case-insensitively, and reports every
// position where one of keys starts. After a match the scan resumes past the matched
// key, so overlapping mentions are not reported twice. Keys are tried in the order
// given; the first one matching at a position wins. Duplicates are kept in the order
// they were seen.
func DetectActive(raw string, keys []string) []string {
	if raw == "" || len(keys) == 0 {
		return nil
	}

	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	text := strings.ToLower(raw)

	var found []string
	for pos := 0; pos < len(text); {
		matched := -1
		for i, k := range lowered {
			if k != "" && strings.HasPrefix(text[pos:], k) {
				matched = i
				break
			}
		}
		if matched < 0 {
			pos++
			continue
		}
		found = append(found, keys[matched])
		pos += len(lowered[matched])
	}
	return found
}

// ActiveLabel renders the detected agents as "Running the X, Y agents". Each agent is
// named once, in first-seen order; keys missing from names are shown as-is. It returns
// "" when nothing was detected.
func ActiveLabel(active []string, names map[string]string) string {
	seen := map[string]bool{}
	var display []string
	for _, key := range active {
		if seen[key] {
			continue
		}
		seen[key] = true
		name := names[key]
		if name == "" {
			name = key
		}
		display = append(display, name)
	}

	switch len(display) {
	case 0:
		return ""
	case 1:
		return "Running the " + display[0] + " agent"
	default:
		return "Running the " + strings.Join(display, ", ") + " agents"
	}
}
