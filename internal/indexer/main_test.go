package indexer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if a run leaves worker, writer or watcher goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
