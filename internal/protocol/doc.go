// Package protocol holds the radar data-port wire format.
//
// Ownership boundary:
// - frame: marker sync, fixed header, stream decoder
// - tlv: segment walk and record decoders
// - session: delivery records, queue and retry policy
package protocol
