package protocol

// The packed version integer started life as a single byte and was later
// widened, so the major component lives above 255 and the legacy byte still
// splits into minor and patch by decimal digits. Servers and clients key
// compatibility off this exact arithmetic, do not simplify it.

// VersionMajor extracts the major component of a packed version.
func VersionMajor(v int) int {
	return v / 256
}

// VersionMinor extracts the minor component of a packed version.
func VersionMinor(v int) int {
	return (v % 256) / 10
}

// VersionPatch extracts the patch component of a packed version.
func VersionPatch(v int) int {
	return (v % 256) % 10
}
