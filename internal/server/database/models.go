package database

// TrackedFile is one row of the expiry bookkeeping table: the stored
// filename and the epoch-millisecond instant it becomes eligible for
// deletion.
type TrackedFile struct {
	TerminationTime int64
	Filename        string
}
