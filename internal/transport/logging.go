// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	"pitchcoach/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	if !log.Enabled(log.LevelDebug) {
		return nil
	}
	if msg, ok := data.(Message); ok && msg.Snapshot != nil {
		s := msg.Snapshot
		line := "LoggingTransport: " + s.State.String() + " target=" + s.Target.ID
		if d := s.LastDetection; d != nil {
			log.Debugf("%s heard=%.2fHz note=%s cents=%+.1f failures=%d", line, d.FrequencyHz, d.MatchedNoteID, d.DeviationCents, s.ConsecutiveFailures)
			return nil
		}
		log.Debugf("%s failures=%d cooldown=%d", line, s.ConsecutiveFailures, s.CooldownRemaining)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Debugf("LoggingTransport: Received (%T): %+v (JSON marshal error: %v)", data, data, err)
		return nil // Logging transport never fails to "send"
	}
	log.Debugf("LoggingTransport: Received (%T): %s", data, jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
