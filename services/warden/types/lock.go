package types

import (
	"time"

	"github.com/mitchellh/copystructure"
)

// Operation is the intent declared by the lock holder. It is informational
// only and never drives classification.
type Operation string

const (
	OperationPlan       Operation = "Plan"
	OperationApply      Operation = "Apply"
	OperationDestroy    Operation = "Destroy"
	OperationManualTest Operation = "ManualTest"
)

// LockRecord is the single persistent entity: the record the acquiring tool
// stores while it holds a resource. The json field names are the wire
// contract with the acquiring tool and must not change.
type LockRecord struct {
	// Key identifies the protected resource. It's the store key, not part
	// of the serialized payload.
	Key string `json:"-"`

	// ID is the lock token, unique to one acquisition. It's the only field
	// compared for identity.
	ID        string    `json:"ID"`
	Operation Operation `json:"Operation"`
	Who       string    `json:"Who"`
	Created   time.Time `json:"Created"`
	Version   string    `json:"Version"`
	Path      string    `json:"Path"`
}

func (r *LockRecord) DeepCopy() *LockRecord {
	if r == nil {
		return nil
	}
	nr, err := copystructure.Copy(r)
	if err != nil {
		panic(err)
	}
	return nr.(*LockRecord)
}

// AgeAt returns the record age at the provided time. The second return
// value is false when the record carries no usable creation time.
func (r *LockRecord) AgeAt(now time.Time) (time.Duration, bool) {
	if r.Created.IsZero() {
		return 0, false
	}
	return now.Sub(r.Created), true
}
