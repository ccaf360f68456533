package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB_SingleConnection(t *testing.T) {
	database := SetupTestDB(t)

	assert.Equal(t, 1, database.Stats().MaxOpenConnections,
		"a plain :memory: DSN gives each new connection an empty database")

	// Concurrent queries must all land on the migrated database.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var count int
			errs[i] = database.QueryRow("SELECT COUNT(*) FROM claims").Scan(&count)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err, "every connection must see the migrated schema")
	}
}
