// Package progress defines how transfers report byte counts to whatever is
// listening: a Sink receives one Event per emission, addressed by an event id
// built from the transfer's correlation id.
//
// Emitter binds a Sink to a single event id so a transfer only deals with
// totals. Hub is the shared UI channel: a Sink that fans events out to any
// number of subscribers and tolerates concurrent emission from many
// transfers.
package progress
