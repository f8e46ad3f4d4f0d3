package directory

// Result is the outcome of one directory fetch.
type Result struct {
	// Users are the usernames in the order the service returned them.
	Users []string
	// ClientIdentity is the display name configured for this client.
	ClientIdentity string
}

// Change describes the difference between two consecutive user snapshots.
type Change struct {
	// Joined are users present in the newer snapshot only.
	Joined []string
	// Left are users present in the older snapshot only.
	Left []string
}

// IsEmpty reports whether nobody joined or left.
func (c Change) IsEmpty() bool {
	return len(c.Joined) == 0 && len(c.Left) == 0
}
