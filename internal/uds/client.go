package uds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrUnreachable marks transport failures: the executor could not be dialed,
// or the exchange did not complete.
var ErrUnreachable = errors.New("executor unreachable")

type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout bounds a request when ctx carries no earlier deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) SocketPath() string {
	return c.socketPath
}

// Send performs one request/response exchange. The connection is closed as
// soon as ctx is done so a stuck executor cannot hold the caller.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: failed to connect to executor at %s: %v\n"+
				"Is the executor running? Start it with: sudo rdpms daemon",
			ErrUnreachable, c.socketPath, err,
		)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetDeadline(deadline)
	req.DeadlineUnixMs = deadline.UnixMilli()

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrUnreachable, ctxErr(ctx, err))
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, ctxErr(ctx, err))
	}

	return &resp, nil
}

func (c *Client) SendCommand(ctx context.Context, command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// ctxErr prefers the context's error over the "use of closed connection" it causes.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
