// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"

	applog "doppler/internal/log"
)

// LoggingTransport implements the Transport interface by logging a one-line
// description of each message. Consecutive identical lines are logged once,
// so a steady state does not flood the log.
type LoggingTransport struct {
	logger applog.Logger

	mu       sync.Mutex
	last     string
	repeated int
	closed   bool
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{logger: applog.Named("transport")}
	lt.logger.Debugf("using LoggingTransport")
	return lt
}

// Send logs data if its description changed since the previous message.
// Values implementing fmt.Stringer are described by String, anything else
// by its %+v form.
func (lt *LoggingTransport) Send(data any) error {
	var line string
	if s, ok := data.(fmt.Stringer); ok {
		line = s.String()
	} else {
		line = fmt.Sprintf("%+v", data)
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.closed {
		return ErrClosed
	}
	if line == lt.last {
		lt.repeated++
		return nil
	}
	if lt.repeated > 0 {
		lt.logger.Debugf("(previous line repeated %d times)", lt.repeated)
	}
	lt.last = line
	lt.repeated = 0
	lt.logger.Infof("%s", line)
	return nil
}

// Close stops logging.
func (lt *LoggingTransport) Close() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.closed = true
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
