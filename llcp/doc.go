// Package llcp implements the Link Layer Control Procedure engine of a BLE
// controller.
//
// An Engine owns the process-wide resources: the local and remote procedure
// context pools, the TX control PDU pool and the TX buffer wait-list. Each
// connection is a Conn created by Engine.NewConn. The lower layers drive a
// Conn through four hooks:
//
//	Run      once per connection event
//	Rx       for every received control PDU
//	TxAck    when the peer acknowledged a control PDU
//	ReleaseTx once the link is done with a TX node
//
// Everything is single threaded. Callers must not use an Engine or any of its
// connections from more than one goroutine at a time.
package llcp
