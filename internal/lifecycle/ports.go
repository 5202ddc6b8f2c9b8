package lifecycle

// Port derives a development-server port from a numeric issue id. It is a
// pure function, not an allocator: issues whose ids coincide modulo the
// range share a port. That collision is a documented limit; nothing tracks
// or defends against it.
func Port(issueID, base, portRange int) int {
	if base <= 0 {
		base = 3000
	}
	if portRange <= 0 {
		portRange = 1000
	}
	return base + issueID%portRange
}
