/*
Package surgeserver provides an epoll-based HTTP/1.x file server built
around an explicit connection lifecycle engine.

One accept goroutine multiplexes every socket through a one-shot
edge-triggered poller and reaps idle connections from a timer min-heap;
a fixed pool of workers drives an incremental request parser against
whichever connection just became readable. A connection is owned by
exactly one of the dispatcher registry, a queued or running worker
task, or an expiring timer, which keeps descriptor closes exact under
full concurrency.

GET serves files from the server root via stat and mmap; POST accepts
an opaque upload, acknowledges it immediately, then decodes it as an
image into receive.bmp. Keep-alive and pipelined requests are handled
with at most one in-flight handler per connection.

Quick start:

	cfg := config.New()
	cfg.Port = 8080
	cfg.Root = "/srv/www"
	a, err := app.New(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	log.Fatal(a.Run())

Modules:

  - app: application lifecycle management
  - config: configuration and validation
  - core: the lifecycle engine (dispatcher, timers, driver)
  - core/http: incremental request parsing and response writing
  - core/poller: I/O multiplexing (epoll)
  - core/pools: worker pool and object pooling
  - core/mime: suffix to content-type resolution
  - core/content: mapped-file source and upload sinks
  - core/observability: prometheus metric set
*/
package surgeserver
