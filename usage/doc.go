// Package usage meters how many calls a user has spent against the allowance
// of their tier. Increments are atomic in the store: a bounded counter never
// passes its maximum, even under concurrent callers.
package usage
