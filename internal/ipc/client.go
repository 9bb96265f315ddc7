package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to a running session.
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

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the session status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Layers lists the layer stack, bottom first.
func (c *Client) Layers() (*LayersResponse, error) {
	var resp LayersResponse
	if err := c.call("Layers", LayersRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LayerAdd creates a layer and selects it.
func (c *Client) LayerAdd(req LayerAddRequest) (*LayerAddResponse, error) {
	var resp LayerAddResponse
	if err := c.call("LayerAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Layer applies a layer action such as remove, raise, or enable.
func (c *Client) Layer(req LayerRequest) (*LayerResponse, error) {
	var resp LayerResponse
	if err := c.call("Layer", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear removes every layer.
func (c *Client) Clear() (*LayerResponse, error) {
	var resp LayerResponse
	if err := c.call("Clear", ClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Draw replays one gesture on the canvas.
func (c *Client) Draw(req DrawRequest) (*DrawResponse, error) {
	var resp DrawResponse
	if err := c.call("Draw", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit flattens the canvas and enqueues a generation job.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.call("Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels the outstanding job.
func (c *Client) Cancel() (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call("Cancel", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Accept commits the selected staged result.
func (c *Client) Accept() (*AcceptResponse, error) {
	var resp AcceptResponse
	if err := c.call("Accept", AcceptRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Discard drops staged results.
func (c *Client) Discard(req DiscardRequest) (*DiscardResponse, error) {
	var resp DiscardResponse
	if err := c.call("Discard", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StagingSelect moves the staging selection.
func (c *Client) StagingSelect(req StagingSelectRequest) (*StagingSelectResponse, error) {
	var resp StagingSelectResponse
	if err := c.call("StagingSelect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Render returns a PNG of the document.
func (c *Client) Render(req RenderRequest) (*RenderResponse, error) {
	var resp RenderResponse
	if err := c.call("Render", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GalleryList lists gallery images.
func (c *Client) GalleryList(req GalleryListRequest) (*GalleryListResponse, error) {
	var resp GalleryListResponse
	if err := c.call("GalleryList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns session events after a cursor.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
