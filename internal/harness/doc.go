// Package harness runs reconciliation and send-queue scenarios and records
// their behavior as a deterministic trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	reconcile:
//	  mode: full            # or delta
//	  master:
//	    - { alt: a, name: A, children: [{ alt: x, name: X }] }
//	  incoming:
//	    - { alt: a, name: A2 }
//	queue:
//	  max_attempts: 3
//	  offline: false        # start disconnected
//	  outcomes: [fail, ok]  # consumed by deliveries in order, then ok
//	  steps:
//	    - enqueue: { method: POST, path: /orders, payload: '{"n":1}' }
//	    - drain: true
//	    - connectivity: online
//	    - retry: 1          # dead letter id
//	assertions:
//	  - { type: list_order, alts: [a] }
//	  - { type: trace_count, event: deliver, count: 2 }
//	  - { type: delivered_order, paths: [/orders] }
//	  - { type: final_state, key: pending, value: 0 }
//
// A scenario needs a reconcile section, a queue section, or both.
//
// # Outcomes
//
//   - ok: the delivery succeeds
//   - fail: the remote rejects it; the entry is retried
//   - invalid: the remote reports the payload unusable; the entry is dropped
//   - offline: connectivity drops during the delivery
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory store, a deterministic clock and a
// scripted transport, so traces are identical across runs and can be
// compared with golden files in testdata/golden.
package harness
