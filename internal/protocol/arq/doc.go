// Package arq owns the alternating-bit state machines.
//
// Ownership boundary:
// - Sender: one outstanding data frame, fixed-interval retransmission
// - Receiver: integrity/sequence validation, exactly-once delivery, ack replay
// - Link/Sink/Timer: the collaborator surface a driver must provide
//
// Handlers run to completion and never block or read the clock. A driver
// must not call into one endpoint from more than one goroutine at a time.
package arq
