// Package relay owns the delivery flow: it drains the session queue and writes
// each delivery to the relay over one persistent connection.
//
// The sender is the only consumer of the queue. It suspends only while
// waiting for the next delivery or sleeping before a reconnect, and transport
// failures never propagate back to the decode flow.
package relay
