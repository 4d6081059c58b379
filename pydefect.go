package pydefect

// Version identifies the detector rules. It is part of the cache fingerprint,
// so bumping it invalidates cached results.
const Version = "0.3.0"

// rulesHashKey is the metadata key holding the cache fingerprint.
const rulesHashKey = "rules_hash"
