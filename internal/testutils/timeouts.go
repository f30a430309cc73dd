package testutils

import (
	"os"
	"time"
)

// FlushTimeout is how long tests wait for a client or transport flush. CI
// runners get more time.
func FlushTimeout() time.Duration {
	if _, ok := os.LookupEnv("CI"); ok {
		return 5 * time.Second
	}
	return time.Second
}
