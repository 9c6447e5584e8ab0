// Package partition loads a ratings table and keeps two partitionings of it
// in the relational store: range partitions bucketed by rating value and
// round-robin partitions assigned by arrival order.
//
// No partitioning state is held in memory. The partition count of each
// scheme is discovered from the catalog on every call, using the naming
// convention <prefix><index> with zero-based contiguous indices, and the
// next round-robin position lives in a single-row counter table.
package partition
