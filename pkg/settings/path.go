package settings

import "strings"

// gjsonPath converts a slash-separated sub-settings path ("stage/filter" or
// "/stage/filter") into a gjson/sjson path, escaping characters that gjson
// would otherwise interpret.
func gjsonPath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = escapeKey(seg)
	}
	return strings.Join(segments, ".")
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
)

// escapeKey makes a single object key safe to use as a gjson/sjson path.
func escapeKey(key string) string {
	return keyEscaper.Replace(key)
}
