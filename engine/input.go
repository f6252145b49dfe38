// ABOUTME: Parses command-line-style script input ("--story ... --pages 3 --path ...") back into values.
// ABOUTME: Only the flag names the caller asks for are recognized, so free text may contain other dashes.
package engine

import "strings"

// ParseInput splits input into the values of the named flags. A flag's value
// runs until the next recognized flag token. Flags that do not appear are
// absent from the result; text before the first recognized flag is ignored.
func ParseInput(input string, names ...string) map[string]string {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known["--"+n] = true
	}

	out := make(map[string]string)
	fields := strings.Fields(input)
	current := ""
	var value []string

	flush := func() {
		if current != "" {
			out[current] = strings.Join(value, " ")
		}
		value = value[:0]
	}

	for _, f := range fields {
		if known[f] {
			flush()
			current = strings.TrimPrefix(f, "--")
			continue
		}
		if current != "" {
			value = append(value, f)
		}
	}
	flush()

	return out
}
