package scanner

import (
	"path"
	"strings"
)

// DefaultPartition names files whose path yields no usable source id.
const DefaultPartition = "default"

// InferPartition derives the source id of a slash-separated path relative
// to the input root: the first directory when there is one, else the file
// name up to its first '_', '-' or '.'.
//
//	propertypro/2024/03.csv        -> propertypro
//	nigeriapropertycentre_0301.csv -> nigeriapropertycentre
//	Private Property.xlsx          -> private_property
func InferPartition(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if dir, _, found := strings.Cut(rel, "/"); found {
		return SanitizeKey(dir)
	}
	stem := rel
	if i := strings.IndexAny(stem, "_-."); i > 0 {
		stem = stem[:i]
	}
	return SanitizeKey(stem)
}

// SanitizeKey lowercases s and keeps [a-z0-9_-]; runs of other characters
// become one underscore.
func SanitizeKey(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	key := strings.Trim(b.String(), "_-")
	if key == "" {
		return DefaultPartition
	}
	return key
}
