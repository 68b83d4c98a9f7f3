// Package planstore persists example plans keyed by (query, category) for
// exact-match retrieval during plan generation. No fuzzy or similarity
// lookup: a plan is returned only for the identical trimmed query and a
// whitelisted category. Implementations: in-memory (tests, development) and
// Redis.
package planstore
