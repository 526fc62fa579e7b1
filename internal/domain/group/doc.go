// Package group contains the study-group domain model: the Group aggregate,
// the Sessions it owns, and the Pass/Attendance lifecycle both enforce.
//
// Aggregates here are plain in-memory objects without locking. They are loaded,
// mutated and persisted inside one Repository.Update call, and the storage
// layer is responsible for serializing concurrent transactions.
//
// Lifecycle of a pass:
//
//	Active --(validity elapsed, noticed on lookup)--> Expired (pruned)
//	Active --(attendance recorded for requestee)----> superseded
//
// There is no explicit consumed state. A redeemed pass stays in the
// outstanding set until it expires. A second redemption is rejected because
// the requestee already has an Attendance.
package group
