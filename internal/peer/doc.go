// Package peer runs an arq endpoint over a UDP socket.
//
// A Node owns one socket and one event loop. Datagram arrivals, timer
// expiries and application submits are all funnelled through that loop so
// the state machines never see concurrent calls.
package peer
