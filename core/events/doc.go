// Package events classifies utterances into control events.
//
// Kinds, from most to least urgent:
//
//   - Emergency (emergency): run the emergency protocol.
//   - Wake (wake): return to listening.
//   - Sleep (sleep): stop answering until woken.
//   - Shutdown (shutdown): stop the assistant.
//   - Continue (continue): nothing matched, answer the utterance.
//   - Error (error): arbitration could not be completed.
//
// Semantics used across the package:
//
//   - Phrase: a configured trigger, matched after normalization as a
//     substring of the utterance.
//   - Match: a phrase found in an utterance, reported as configured.
//   - Priority: the rank of a kind; the lowest rank among matched kinds
//     decides the event.
//
// Only Emergency, Wake, Sleep and Shutdown are scanned for. Continue and
// Error are outcomes of arbitration and are never matched directly.
package events
