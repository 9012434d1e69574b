package research

import "strings"

// Models routinely wrap JSON output in prose. These helpers isolate the
// embedded JSON by bracket positions instead of requiring the whole
// response to parse.

// isolateJSONObject returns the substring between the first '{' and the
// last '}' in s, or "" if no such pair exists.
func isolateJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// isolateJSONArray returns the substring between the first '[' and the
// last ']' in s, or "" if no such pair exists.
func isolateJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
