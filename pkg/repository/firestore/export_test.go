package firestore

var (
	SplitParts    = splitParts
	CommitBatches = commitBatches
)

const (
	MaxCommitBytes  = maxCommitBytes
	MaxCommitWrites = maxCommitWrites
)
