package methodchannel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type transport struct {
	authToken string
	base      http.Transport
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", t.authToken))
	return t.base.RoundTrip(req)
}

// Client calls a Server over its socket or pipe.
type Client struct {
	authToken  string
	socketPath string
	base       http.Client
}

func NewClient(authToken, socketPath string, timeout time.Duration) *Client {
	transport := &transport{
		authToken: authToken,
		base: http.Transport{
			DialContext: dialContext(socketPath),
		},
	}

	return &Client{
		authToken:  authToken,
		socketPath: socketPath,
		base: http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

func (c *Client) Ping() error {
	resp, err := c.base.Get("http://unix/ping")
	if err != nil {
		return err
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Invoke calls method with args. A method failure is returned as *Error.
func (c *Client) Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	body, err := encode(Request{Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", msgpackContentType)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var r Response
	if err := decode(out, &r); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Result, nil
}

// Events subscribes to pushed events until ctx is done or the server goes
// away. The returned channel is closed when the subscription ends.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	dial := dialContext(c.socketPath)
	dialer := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return dial(ctx, network, addr)
		},
		HandshakeTimeout: 5 * time.Second,
	}

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.authToken))

	conn, resp, err := dialer.Dial("ws://unix/events", header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing events: %w", err)
	}

	events := make(chan Event)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()
		for {
			_, r, err := conn.NextReader()
			if err != nil {
				return
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return
			}
			var event Event
			if err := decode(data, &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
