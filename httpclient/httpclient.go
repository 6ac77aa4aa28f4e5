// Package httpclient implements an async HTTP client core: a single worker
// goroutine coordinates requests submitted from arbitrary caller goroutines,
// reporting completion through caller-supplied callbacks.
//
// The shape is a libcurl multi-handle style event loop (one thread driving
// many concurrent transfers, woken via a self-pipe when new work arrives)
// adapted to Go: net/http has no non-blocking multi-request interface, so
// each submitted request runs its own goroutine performing a blocking Do
// call, and the worker just coordinates completions and wakeups.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/brettbedarf/httpdirfs-go/config"
	"github.com/brettbedarf/httpdirfs-go/internal/util"
)

var log = util.GetLogger("httpclient")

// idleSelectTimeout bounds how long the worker waits with no pending work
// or in-flight completions before looping around again.
const idleSelectTimeout = 10 * time.Second

// request is one submitted unit of work. write is invoked once per received
// byte chunk and done at most once at completion, per request lifecycle
// pending -> in-flight -> done.
type request struct {
	url    string
	offset int64
	size   int64
	write  func([]byte) bool
	done   func(bool)
}

type completion struct {
	req *request
	ok  bool
}

// Client is an async HTTP client core. The zero value is not usable;
// construct with New.
type Client struct {
	httpClient *http.Client

	submitMu sync.Mutex
	pending  []*request

	wakeup chan struct{}
	comp   chan completion
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Client and starts its worker goroutine. cfg.Proxy, if set,
// is used for every request issued by this client.
func New(cfg *config.Config) (*Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.DefaultConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: config.DefaultConnectTimeout,
	}

	if cfg != nil && cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	httpClient := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			// auto-referer: point each redirect hop back at the prior URL.
			if len(via) > 0 {
				req.Header.Set("Referer", via[len(via)-1].URL.String())
			}
			return nil
		},
	}

	c := &Client{
		httpClient: httpClient,
		wakeup:     make(chan struct{}, 1),
		comp:       make(chan completion),
		done:       make(chan struct{}),
	}

	c.wg.Add(1)
	go c.work()

	return c, nil
}

// Submit enqueues a request. write is invoked with each received chunk and
// may return false to abort the transfer early, which is reported as
// done(false). done is invoked exactly once, reporting overall success; it is
// never invoked for requests still pending or in-flight at Shutdown.
func (c *Client) Submit(targetURL string, offset, size int64, write func([]byte) bool, done func(bool)) {
	req := &request{url: targetURL, offset: offset, size: size, write: write, done: done}

	c.submitMu.Lock()
	c.pending = append(c.pending, req)
	c.submitMu.Unlock()

	// Non-blocking wakeup, the Go equivalent of writing a byte to the
	// self-pipe: if the worker is already awake, the send is dropped.
	select {
	case c.wakeup <- struct{}{}:
	default:
	}
}

// Get blocks until the request at url, for the given byte range, completes,
// returning the accumulated body and whether it succeeded. offset and size
// of 0 request the whole resource.
func (c *Client) Get(ctx context.Context, targetURL string, offset, size int64) (ok bool, body []byte) {
	var buf []byte
	result := make(chan bool, 1)

	c.Submit(targetURL, offset, size,
		func(chunk []byte) bool {
			buf = append(buf, chunk...)
			return true
		},
		func(success bool) {
			result <- success
		},
	)

	select {
	case ok := <-result:
		return ok, buf
	case <-ctx.Done():
		return false, nil
	}
}

// Shutdown stops the worker and waits for it to exit. Any requests still
// pending or in-flight are abandoned without their done callbacks firing.
func (c *Client) Shutdown() {
	close(c.done)
	select {
	case c.wakeup <- struct{}{}:
	default:
	}
	c.wg.Wait()
}

func (c *Client) work() {
	defer c.wg.Done()

	for {
		for _, req := range c.drainPending() {
			go c.perform(req)
		}

		select {
		case <-c.done:
			return
		case comp := <-c.comp:
			if comp.req.done != nil {
				comp.req.done(comp.ok)
			}
		case <-c.wakeup:
			// loop around to drain newly submitted requests
		case <-time.After(idleSelectTimeout):
			// periodic wakeup so a long idle period doesn't wedge the loop
		}
	}
}

func (c *Client) drainPending() []*request {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	drained := c.pending
	c.pending = nil
	return drained
}

func (c *Client) perform(req *request) {
	ok := c.doRequest(req)

	select {
	case c.comp <- completion{req: req, ok: ok}:
	case <-c.done:
		// worker already shutting down; drop the completion
	}
}

func (c *Client) doRequest(req *request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultTransferTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.url, nil)
	if err != nil {
		log.Debug().Err(err).Str("url", req.url).Msg("failed to build request")
		return false
	}

	// Disable the Expect: 100-continue preflight.
	httpReq.Header.Set("Expect", "")

	if req.offset != 0 || req.size != 0 {
		last := req.offset + req.size - 1
		httpReq.Header.Set("Range", "bytes="+strconv.FormatInt(req.offset, 10)+"-"+strconv.FormatInt(last, 10))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Str("url", req.url).Msg("request failed")
		return false
	}
	defer resp.Body.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && req.write != nil {
			if !req.write(buf[:n]) {
				return false
			}
		}
		if err != nil {
			break
		}
	}

	// HTTP status is not separately surfaced; a 404 body still reports ok.
	return true
}
