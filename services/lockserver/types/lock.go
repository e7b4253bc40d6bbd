package types

// LockResponse carries the raw record payload stored under a lock key.
type LockResponse struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}

type LocksResponse struct {
	Keys []string `json:"keys"`
}

// AcquireLockRequest creates a lock record under Key, failing when a record
// already exists. When the record payload carries no token the server
// generates one and returns it inside the stored payload.
type AcquireLockRequest struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}

// SetLockRequest stores a lock record under Key, overwriting any previous
// record.
type SetLockRequest struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}
