// Package message defines outbound host messages and the Port they are
// posted to.
//
// Three shapes exist: a plain string, a structured {callbackId, data}
// payload encoded as CBOR, and a binary (callbackId, bytes) pair. Posting
// is fire-and-forget: Port.Post returns whether the host accepted the
// message and never blocks on the receiver.
package message
