package types

import "strings"

// ClassLocation is the location of references made by a class header or its annotations.
const ClassLocation = ""

// FormatLocation joins a member name and descriptor into a location string.
func FormatLocation(name, desc string) string {
	return name + ":" + desc
}

// SplitLocation splits a location into member name and descriptor.
// The class location and strings without a separator yield an empty descriptor.
func SplitLocation(loc string) (name, desc string) {
	i := strings.IndexByte(loc, ':')
	if i < 0 {
		return loc, ""
	}
	return loc[:i], loc[i+1:]
}

// IsMethodLocation reports whether loc names a method (its descriptor contains '(').
func IsMethodLocation(loc string) bool {
	_, desc := SplitLocation(loc)
	return strings.IndexByte(desc, '(') >= 0
}
