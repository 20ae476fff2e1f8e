package redis

// Redis key naming conventions for pilot data.
// All keys are prefixed with "pilot:" to avoid collisions.

const keyPrefix = "pilot:"

// ── Run keys ──

// runKey returns the key for a run entity: pilot:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// ── Selector keys ──

// selKey returns the Hash key for a cached selector:
// pilot:sel:{tenant}:{goal_hash}:{url_pattern}
func selKey(composite string) string { return keyPrefix + "sel:" + composite }

// selIDsKey is the Set tracking all selector composite keys for
// enumeration (stale sweeps).
const selIDsKey = keyPrefix + "sel_ids"

// ── Persona keys ──

// personaKey returns the key for a persona entity: pilot:persona:{id}
func personaKey(id string) string { return keyPrefix + "persona:" + id }

// personaIDsKey is the Set tracking all persona IDs for enumeration.
const personaIDsKey = keyPrefix + "persona_ids"

// ── Event keys ──

// eventKey returns the key for a completion event: pilot:event:{runID}
func eventKey(runID string) string { return keyPrefix + "event:" + runID }

// tenantEventsKey returns the List of event run IDs for a tenant,
// newest first: pilot:events:{tenant}
func tenantEventsKey(tenant string) string { return keyPrefix + "events:" + tenant }
