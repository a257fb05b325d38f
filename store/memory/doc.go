// Package memory is an in-process implementation of every domain store.
//
// It is meant for tests and single-instance demos. A transaction holds one
// store-wide lock for its whole duration, and any error rolls the data back
// to the snapshot taken when it began. Calls made with the context handed to
// the transaction function join it instead of taking the lock again.
package memory
