package reliability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// UpgradeError is a connection upgrade the server rejected before the
// websocket handshake completed. Reason carries the plain-text rejection
// body, which the terminal classifier inspects.
type UpgradeError struct {
	StatusCode int
	Reason     string
}

func (e *UpgradeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("upgrade rejected (%d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("upgrade rejected (%d)", e.StatusCode)
}

// Retryable reports whether the rejection status is worth another attempt.
func (e *UpgradeError) Retryable() bool {
	return IsRetryableHTTPStatus(e.StatusCode)
}

// Client dials the voice session endpoint carrying the signed session
// cookie.
type Client struct {
	URL    string
	Cookie *http.Cookie
	Dialer *websocket.Dialer
}

// Dial opens the websocket. On a rejected upgrade the returned error is an
// *UpgradeError with the server's plain-text reason.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{}
	if c.Cookie != nil {
		header.Set("Cookie", c.Cookie.String())
	}
	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &UpgradeError{
				StatusCode: resp.StatusCode,
				Reason:     string(bytes.TrimSpace(body)),
			}
		}
		return nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}
	return conn, nil
}
