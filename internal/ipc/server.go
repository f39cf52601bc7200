// Package ipc serves the command protocol over a unix domain socket:
// newline-delimited JSON, one response line per request line.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/router"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// MaxMessageSize bounds one framed request.
const MaxMessageSize = 1 << 20

var (
	ErrServerRunning = errors.New("server already running")
	ErrNotSocket     = errors.New("path exists and is not a socket")
)

// Router handles one framed message.
type Router interface {
	RouteBytes(line []byte) router.Response
}

// Options configures the server. Zero timeouts and MaxConnections mean
// unbounded.
type Options struct {
	SocketPath     string
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
}

// Server accepts connections and runs one handler goroutine per connection.
type Server struct {
	opts   Options
	router Router
	sem    *semaphore.Weighted

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  bool
	wg       sync.WaitGroup

	accepted atomic.Int64
	rejected atomic.Int64
	active   atomic.Int64
}

func NewServer(opts Options, r Router) *Server {
	s := &Server{
		opts:   opts,
		router: r,
		conns:  make(map[net.Conn]struct{}),
	}
	if opts.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxConnections))
	}
	return s
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.opts.SocketPath
}

// Start removes a stale socket file, binds, and begins accepting.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrServerRunning
	}

	if err := removeStaleSocket(s.opts.SocketPath); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.SocketPath, err)
	}

	s.listener = ln
	s.running = true
	s.wg.Add(1)
	go s.acceptLoop(ln)

	log.Info().Str("socket", s.opts.SocketPath).Msg("command server listening")
	return nil
}

// Serve starts the server and blocks until ctx is done, then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop closes the listener and every open connection, waits for the
// handlers, and removes the socket file. Stopping twice is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := os.Remove(s.opts.SocketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("socket", s.opts.SocketPath).Msg("failed to remove socket file")
	}
	log.Info().Str("socket", s.opts.SocketPath).Msg("command server stopped")
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats counts connections.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Active   int64 `json:"active"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Active:   s.active.Load(),
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.Running() || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			log.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if s.sem != nil && !s.sem.TryAcquire(1) {
			s.rejected.Add(1)
			log.Warn().Int("max_connections", s.opts.MaxConnections).Msg("connection rejected, server busy")
			s.writeResponse(conn, router.ErrorResponse("", errors.New("server busy: too many connections")))
			conn.Close()
			continue
		}

		if !s.track(conn) {
			conn.Close()
			s.release()
			return
		}
		s.accepted.Add(1)
		go s.handle(conn)
	}
}

// track registers conn unless the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) handle(conn net.Conn) {
	id := uuid.NewString()[:8]
	s.active.Add(1)
	defer func() {
		conn.Close()
		s.untrack(conn)
		s.release()
		s.active.Add(-1)
		s.wg.Done()
		log.Info().Str("conn", id).Msg("client disconnected")
		events.Emit("info", "client.disconnected", "client disconnected", map[string]interface{}{"conn": id})
	}()

	log.Info().Str("conn", id).Msg("client connected")
	events.Emit("info", "client.connected", "client connected", map[string]interface{}{"conn": id})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	for {
		if s.opts.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		line := trimCR(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp router.Response
		if !utf8.Valid(line) {
			log.Warn().Str("conn", id).Msg("rejected message with invalid UTF-8")
			resp = router.ErrorResponse("", errors.New("invalid UTF-8 in message"))
		} else {
			resp = s.router.RouteBytes(line)
		}
		if err := s.writeResponse(conn, resp); err != nil {
			log.Warn().Err(err).Str("conn", id).Msg("write failed")
			return
		}
	}

	err := scanner.Err()
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrTooLong):
		log.Warn().Str("conn", id).Int("limit", MaxMessageSize).Msg("message too long, closing connection")
		s.writeResponse(conn, router.ErrorResponse("", fmt.Errorf("message exceeds %d bytes", MaxMessageSize)))
	case isTimeout(err):
		log.Info().Str("conn", id).Dur("idle", s.opts.IdleTimeout).Msg("closing idle connection")
	case errors.Is(err, net.ErrClosed):
	default:
		log.Warn().Err(err).Str("conn", id).Msg("read failed")
	}
}

func (s *Server) writeResponse(conn net.Conn, resp router.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(router.ErrorResponse(resp.Type, fmt.Errorf("failed to encode response: %v", err)))
	}
	b = append(b, '\n')
	if s.opts.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	_, err = conn.Write(b)
	return err
}

// removeStaleSocket deletes a leftover socket file. Anything else at the
// path is left alone.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s", ErrNotSocket, path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	log.Debug().Str("socket", path).Msg("removed stale socket")
	return nil
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
