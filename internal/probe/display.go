package probe

import "strconv"

// Display renders b for humans: printable ASCII as-is, anything else quoted
// with escapes. It is only meant for log and status output.
func Display(b []byte) string {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return strconv.Quote(string(b))
		}
	}
	return string(b)
}
