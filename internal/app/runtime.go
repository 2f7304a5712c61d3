package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return testModeEnabled(os.Getenv(testModeEnv))
})

// InTestMode reports whether cmd/odyssey and cmd/worker should exit before
// opening Postgres, Redis or a listener. The flag is read once per process.
func InTestMode() bool {
	return testMode()
}

func testModeEnabled(v string) bool {
	on, err := strconv.ParseBool(v)
	return err == nil && on
}
