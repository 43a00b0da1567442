package stompclient

import "sync/atomic"

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as counters:
// FramesSent, FramesReceived, MessagesDispatched, Reconnects, Errors.
type ClientStats struct {
	FramesSent         uint64 // Frames written to a broker
	FramesReceived     uint64 // Frames decoded off the wire, heartbeats included
	MessagesDispatched uint64 // MESSAGE frames handed to a subscription
	Reconnects         uint64 // Connections replaced after a send failure
	Errors             uint64 // Failed operations across all kinds
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - clients update their own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordSend() {
	atomic.AddUint64(&c.stats.FramesSent, 1)
}

func (c *clientStatsCollector) recordReceive() {
	atomic.AddUint64(&c.stats.FramesReceived, 1)
}

func (c *clientStatsCollector) recordDispatch() {
	atomic.AddUint64(&c.stats.MessagesDispatched, 1)
}

func (c *clientStatsCollector) recordReconnect() {
	atomic.AddUint64(&c.stats.Reconnects, 1)
}

func (c *clientStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		FramesSent:         atomic.LoadUint64(&c.stats.FramesSent),
		FramesReceived:     atomic.LoadUint64(&c.stats.FramesReceived),
		MessagesDispatched: atomic.LoadUint64(&c.stats.MessagesDispatched),
		Reconnects:         atomic.LoadUint64(&c.stats.Reconnects),
		Errors:             atomic.LoadUint64(&c.stats.Errors),
	}
}
