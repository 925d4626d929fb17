package worker

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// buildID is minted once per process; cmd/worker sets it as the Temporal
// worker identity, so the engine can attribute task progress to a
// specific worker version the way a deploy's release notes would. Grounded
// in the teacher's run_id.go ID-minting helper, adapted from a per-agent
// workflow ID to a per-process build identifier.
var (
	buildIDOnce sync.Once
	buildIDVal  string
)

// BuildID returns this process's build identifier, minting it on first call.
func BuildID() string {
	buildIDOnce.Do(func() {
		buildIDVal = ulid.MustNew(ulid.Now(), rand.Reader).String()
	})
	return buildIDVal
}
