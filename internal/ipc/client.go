package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/router"
)

// Client is a connection to a running command server. It is safe for
// concurrent use; requests are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to the socket at path. timeout bounds the dial and each
// round trip; zero means no limit.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64*1024),
		timeout: timeout,
	}, nil
}

// Send encodes req, writes it as one line and decodes the reply.
func (c *Client) Send(req router.Request) (router.Response, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return router.Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	raw, err := c.SendRaw(line)
	if err != nil {
		return router.Response{}, err
	}
	var resp router.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return router.Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// SendRaw writes one line and returns the reply line without its newline.
func (c *Client) SendRaw(line []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	reply, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return reply[:len(reply)-1], nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
