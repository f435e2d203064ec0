package core

// LocalID is a dense, internal identifier for an envelope within the index.
// It is strictly 32-bit, allowing for max 4 Billion envelopes per index.
// Used for all hot-path structures (posting bitmaps, id tables).
type LocalID uint32

// MaxLocalID is the maximum possible value for a LocalID.
const MaxLocalID = ^LocalID(0)
