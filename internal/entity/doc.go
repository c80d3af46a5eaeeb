// Package entity defines the synchronizable business-object model shared by
// the reconciler, the local store and the send queue.
//
// Every entity carries a Base with two identities:
//
//   - AlternateID: generated client-side when the entity is constructed,
//     stable for its whole lifetime, and the ONLY key used to decide that two
//     in-memory objects are the same logical record.
//   - ID: the integer primary key. Zero until persisted. Values below
//     LocalIDCeiling are provisional ids allocated while offline; the remote
//     authority assigns ids at or above the ceiling.
//
// Never compare entities by ID across the client/server boundary: a record
// created offline has a local ID that the server has never seen.
//
// # Canonical JSON
//
// MarshalCanonical and Canonicalize produce a byte-stable JSON encoding
// (sorted keys, NFC strings, no HTML escaping) used for queue payload digests
// and golden traces.
package entity
