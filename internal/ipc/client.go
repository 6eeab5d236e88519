package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"rerun/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Stop requests the daemon to stop.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Rerun.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Rerun.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Snapshot retrieves the playlist snapshot.
func (c *Client) Snapshot(limit int) (*SnapshotResponse, error) {
	var resp SnapshotResponse
	if err := c.client.Call("Rerun.Snapshot", SnapshotRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Patch submits a playlist edit against a version token.
func (c *Client) Patch(patch api.PatchRequest) (*PatchResponse, error) {
	var resp PatchResponse
	if err := c.client.Call("Rerun.Patch", PatchRequest{Patch: patch}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Skip interrupts the entry playing right now.
func (c *Client) Skip() (*SkipResponse, error) {
	var resp SkipResponse
	if err := c.client.Call("Rerun.Skip", SkipRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Rerun.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
