package redis

// Redis key naming conventions for videogen data.
// All keys are prefixed with "videogen:" to avoid collisions.

const keyPrefix = "videogen:"

// jobKey returns the key for a job entity: videogen:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// dlqKey returns the key for a DLQ entry entity: videogen:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all DLQ entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"
