// Package engagement contains the domain model of a learner's daily engagement.
//
// The package defines:
//
//   - Entities: Student, DailyLog, Intervention
//   - Value objects: State, Outcome, InterventionStatus, Signal, Decision
//   - The state machine (Machine) that maps a (state, signal) pair to a Decision
//   - The focus signal normalizer (NormalizeFocusMinutes)
//   - Repository interfaces implemented in infrastructure
//
// # States
//
// A student is always in exactly one of three states:
//
//	normal ──check-in fails / violation──▶ needs_intervention ──assign──▶ remedial
//	   ▲                                                                     │
//	   └────────────────────────────── complete ◀───────────────────────────┘
//
// A passing check-in (score > 7 and focus > 60 minutes by default) moves any
// state back to normal. Assignment and completion are forced transitions: they
// do not look at the current state.
//
// # Purity
//
// Machine.Decide has no side effects. Persistence, mentor notification and
// status propagation are sequenced by the escalation coordinator in the
// application layer.
package engagement
