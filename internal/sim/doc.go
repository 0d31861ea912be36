// Package sim is a deterministic discrete-event driver for the arq endpoints.
//
// Ownership boundary:
// - virtual clock and event queue
// - lossy, corrupting, order-preserving channel per direction
// - application source/sink and end-of-run verification
//
// Nothing here reads wall-clock time; a run is fully determined by its Config.
package sim
