// Package stompclient is a client for STOMP 1.0 message brokers.
//
// Two clients are provided, differing in how they use the network:
//
//   - PublishClient is a synchronous, publish-only client. It never reads
//     from the socket, which keeps it safe to use with one connection per
//     execution context and lets it silently replace a broken connection
//     and retry a failed send exactly once.
//
//   - DuplexClient supports the full protocol. A background goroutine owns
//     the read side of a single shared connection and routes incoming
//     frames: CONNECTED and RECEIPT resolve callers blocked in Connect or
//     in a receipted Send, MESSAGE frames are delivered to subscription
//     handlers or to a hand-off channel, ERROR frames fail the pending
//     waiter or go to the configured error callback.
//
// Frame encoding and decoding lives in the frame subpackage.
package stompclient
