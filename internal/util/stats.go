package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling/call counter.
var Stats = &stats{}

type stats struct {
	SignalsSent  atomic.Int64 // cumulative signaling envelopes written to the relay
	SignalsRecv  atomic.Int64 // cumulative signaling envelopes read from the relay
	Reconnects   atomic.Int64 // cumulative successful transport reconnects
	CallsStarted atomic.Int64 // cumulative calls that reached the connected state
	CallsEnded   atomic.Int64 // cumulative calls torn down
}

func (s *stats) AddSent()      { s.SignalsSent.Add(1) }
func (s *stats) AddRecv()      { s.SignalsRecv.Add(1) }
func (s *stats) AddReconnect() { s.Reconnects.Add(1) }
func (s *stats) CallStarted()  { s.CallsStarted.Add(1) }
func (s *stats) CallEnded()    { s.CallsEnded.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every 10 seconds while there is activity. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.SignalsSent.Load()
				recv := Stats.SignalsRecv.Load()

				if sent != prevSent || recv != prevRecv {
					LogInfo("%s", formatStats(sent-prevSent, recv-prevRecv, Stats.Reconnects.Load()))
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sent, recv, reconnects int64) string {
	return fmt.Sprintf("Signals: %2d↑ %2d↓ | Reconnects: %d", sent, recv, reconnects)
}
