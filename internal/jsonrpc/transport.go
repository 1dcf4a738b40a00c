package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Transport reads requests and writes responses over a byte stream.
type Transport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
}

// NewTransport wraps an io.Reader and io.Writer as a JSON-RPC transport.
// Each JSON message is expected to be a single line terminated by newline.
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// ReadMessage returns the next non-blank line. A final line without a
// trailing newline is still returned.
func (t *Transport) ReadMessage() ([]byte, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			return trimmed, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteResponse sends a JSON-RPC response (newline-delimited).
func (t *Transport) WriteResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.writer.Write(data)
	return err
}

// TCPListener listens for TCP connections and serves each with the given server.
type TCPListener struct {
	listener net.Listener
	server   *Server
	wg       sync.WaitGroup
}

// NewTCPListener creates a TCP listener on the given address.
func NewTCPListener(addr string, server *Server) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &TCPListener{listener: ln, server: server}, nil
}

// Addr returns the listener's network address.
func (tl *TCPListener) Addr() net.Addr {
	return tl.listener.Addr()
}

// Serve accepts connections until ctx is canceled or the listener is closed.
// Open connections are closed on cancellation and Serve waits for their
// goroutines before returning.
func (tl *TCPListener) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { tl.listener.Close() }) //nolint:errcheck
	defer stop()

	var err error
	for {
		var conn net.Conn
		conn, err = tl.listener.Accept()
		if err != nil {
			break
		}
		tl.wg.Add(1)
		go func() {
			defer tl.wg.Done()
			defer conn.Close() //nolint:errcheck
			closeConn := context.AfterFunc(ctx, func() { conn.Close() }) //nolint:errcheck
			defer closeConn()
			tl.server.ServeTransport(ctx, NewTransport(conn, conn))
		}()
	}

	canceled := ctx.Err() != nil
	cancel()
	tl.wg.Wait()
	if canceled || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close shuts down the TCP listener.
func (tl *TCPListener) Close() error {
	return tl.listener.Close()
}
