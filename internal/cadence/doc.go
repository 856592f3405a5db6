// Package cadence holds the pure pacing rules of outbound prospecting: the
// sending-window predicate, the dispatch plan, and the variant selection and
// humanization applied to each first message.
//
// Nothing in this package touches storage or the network. Every randomized
// function takes an injected *rand.Rand so callers can seed it in tests.
package cadence
