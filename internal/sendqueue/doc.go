// Package sendqueue is the durable, ordered, at-least-once outbound queue.
//
// Application saves Enqueue operations; a background loop started with
// Start drains the queue on a fixed interval. Each drain:
//
//   - is single-flight: a drain that starts while another runs returns
//     ErrDrainInProgress and touches nothing
//   - does nothing when the connectivity oracle says it cannot send
//   - counts the pending entries N up front and performs at most N
//     iterations, re-reading the store on each one
//
// Per entry, a successful delivery deletes it. A structurally invalid entry
// is deleted without counting an attempt. Any other failure first re-checks
// connectivity: if the network just dropped, the entry is left untouched and
// the drain stops. Otherwise Attempts is incremented and, once it reaches the
// threshold (5 by default), the entry moves to the dead-letter table.
//
// A failing entry never blocks the entries behind it within a drain: the next
// iteration continues after it in ID order.
package sendqueue
