package core

import "time"

const (
	// DefaultIdleTimeout is the idle window: a connection with no
	// readable event for this long is reaped.
	DefaultIdleTimeout = 500 * time.Millisecond

	// DefaultMaxEvents caps how many readiness events one wait returns.
	DefaultMaxEvents = 5000

	// DefaultWaitTimeoutMs bounds a single poller wait so timer reaping
	// runs even when no events arrive.
	DefaultWaitTimeoutMs = 100

	// readChunk is the scratch buffer size for a single read.
	readChunk = 4096

	// respBufSize is the initial response header buffer size.
	respBufSize = 8192

	// emptyReadBudget is the number of consecutive empty reads
	// tolerated before the connection is given up on.
	emptyReadBudget = 200

	// listenBacklog is the accept queue length.
	listenBacklog = 1024

	// keepAliveParam is advertised on keep-alive responses and matches
	// DefaultIdleTimeout in milliseconds. It stays fixed when a different
	// idle timeout is configured.
	keepAliveParam = "timeout=500"
)
