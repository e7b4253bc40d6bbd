package testutil

import (
	"encoding/json"
	"os"
	"testing"

	"gotest.tools/v3/assert"
	"muzzammil.xyz/jsonc"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

// LoadLockFixtures reads a jsonc file mapping resource keys to lock record
// payloads and returns the records with their Key field set.
func LoadLockFixtures(t *testing.T, path string) map[string]*types.LockRecord {
	data, err := os.ReadFile(path)
	assert.NilError(t, err)

	records := map[string]*types.LockRecord{}
	err = json.Unmarshal(jsonc.ToJSON(data), &records)
	assert.NilError(t, err)

	for key, record := range records {
		record.Key = key
	}

	return records
}
