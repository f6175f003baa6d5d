package control

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"tools.zach/dev/powerhook/internal/paths"
)

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client sends requests to a running daemon.
type Client struct {
	// mu serializes request/response pairs and protects nonce.
	mu   sync.Mutex
	conn net.Conn
	// nonce is a monotonically increasing counter tagging each request.
	nonce uint64
	// timeout bounds each request/response round trip.
	timeout time.Duration
}

// Dial connects to the daemon serving dir. It returns an error wrapping
// [ErrNotRunning] when nothing is listening.
func Dial(dir paths.DataDir, timeout time.Duration) (*Client, error) {
	conn, err := dial(dir, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

// Status asks the daemon for its current state.
func (c *Client) Status() (*Response, error) {
	return c.call(CmdStatus)
}

// Stop asks the daemon to shut down. It returns once the daemon has
// acknowledged the request, not once it has exited.
func (c *Client) Stop() error {
	_, err := c.call(CmdStop)
	return err
}

// Close tells the daemon the client is done and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = WriteFrame(c.conn, OpClose, nil)
	return c.conn.Close()
}

// call sends one request and waits for the matching response.
func (c *Client) call(cmd string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nonce++
	req := Request{Cmd: cmd, Nonce: strconv.FormatUint(c.nonce, 10)}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", cmd, err)
	}

	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := WriteFrame(c.conn, OpRequest, payload); err != nil {
		return nil, err
	}

	opcode, data, err := ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", cmd, err)
	}
	if opcode != OpResponse {
		return nil, fmt.Errorf("unexpected %s frame in reply", opcode)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", cmd, err)
	}
	if resp.Nonce != req.Nonce {
		return nil, fmt.Errorf("response nonce %q does not match request %q", resp.Nonce, req.Nonce)
	}
	if !resp.OK {
		return &resp, fmt.Errorf("%s: %s", cmd, resp.Error)
	}
	return &resp, nil
}
