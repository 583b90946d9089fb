package replay

import (
	"os"
	"path/filepath"
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"
)

// WritabilityObservation returns a liveness check that confirms the
// directory backing the replay cache is still writable, wired into the
// executor's health monitor (§9: the replay cache is the executor's only
// piece of required durable state, so losing write access to it is fatal
// to correctness, not just availability).
func (c *Cache) WritabilityObservation() *healthcheck.Observation {
	check := func() error {
		dir := filepath.Dir(c.path)
		if dir == "" {
			dir = "."
		}
		probe := filepath.Join(dir, ".replay-writability-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return err
		}
		return os.Remove(probe)
	}

	return healthcheck.NewObservation(
		"replay cache writable",
		check,
		time.Minute,
		10*time.Second,
		time.Second,
		1,
	)
}
