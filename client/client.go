// Package client is the coordinator side of a worker session. A Client owns
// one websocket connection; Send registers a train config on the worker and
// returns a Proxy that drives it remotely.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/absmach/fltrain/pkg/crypto"
	"github.com/absmach/fltrain/pkg/dataset"
	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/trainconfig"
	"github.com/gorilla/websocket"
)

const (
	wsPath     = "/ws"
	closeGrace = time.Second
)

var (
	ErrConnectionFailed = errors.New("failed to connect to worker")
	ErrClosed           = errors.New("client is closed")
	errResponseID       = errors.New("response id does not match request")
)

type Config struct {
	Host        string
	Port        int
	ID          string
	Verbose     bool
	WorkloadKey string // Hex AES-256 key shared with the worker, empty disables sealing
}

// URL returns the websocket endpoint of the worker described by c.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     wsPath,
		RawQuery: url.Values{"id": []string{c.ID}}.Encode(),
	}

	return u.String()
}

// Client is safe for concurrent use; calls are serialized on the connection.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	conn   *websocket.Conn
	sealer *crypto.Sealer
	logger *slog.Logger
	nextID uint64
}

// Connect opens a session with the worker. It does not retry.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sealer, err := crypto.NewSealer(cfg.WorkloadKey)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()

			var remote rpc.Response
			if decErr := json.NewDecoder(resp.Body).Decode(&remote); decErr == nil && remote.Code != "" {
				return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, remote.Err())
			}
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL(), err)
	}

	logger.Debug("connected to worker", slog.String("worker_id", cfg.ID), slog.String("url", cfg.URL()))

	return &Client{
		cfg:    cfg,
		conn:   conn,
		sealer: sealer,
		logger: logger,
	}, nil
}

func (c *Client) WorkerID() string {
	return c.cfg.ID
}

// Send registers cfg on the worker. The model bytes are sealed with the
// workload key when one is configured.
func (c *Client) Send(ctx context.Context, cfg trainconfig.TrainConfig) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sealed, err := c.sealer.Seal(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to seal model: %w", err)
	}
	cfg.Model = sealed

	var res rpc.RegisterResult
	if err := c.call(ctx, rpc.MethodRegister, rpc.RegisterParams{Config: cfg}, &res); err != nil {
		return nil, err
	}

	return &Proxy{Handle: res.Handle, client: c}, nil
}

// Datasets lists the dataset keys and shapes the worker holds.
func (c *Client) Datasets(ctx context.Context) ([]dataset.Info, error) {
	var res rpc.DatasetsResult
	if err := c.call(ctx, rpc.MethodDatasets, nil, &res); err != nil {
		return nil, err
	}

	return res.Datasets, nil
}

// Close ends the session. The worker releases every handle the session
// created.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil

	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	if err == nil {
		// Wait for the worker to answer the close frame.
		_ = conn.SetReadDeadline(time.Now().Add(closeGrace))
		for {
			if _, _, rerr := conn.NextReader(); rerr != nil {
				break
			}
		}
	}

	if cerr := conn.Close(); cerr != nil && err == nil {
		err = cerr
	}

	return err
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	c.nextID++
	req, err := rpc.NewRequest(c.nextID, method, params)
	if err != nil {
		return err
	}

	// A zero deadline clears any deadline left by a previous call.
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := c.conn.WriteJSON(req); err != nil {
		return c.transportErr(ctx, method, err)
	}

	var resp rpc.Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return c.transportErr(ctx, method, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: %w: sent %d, got %d", method, errResponseID, req.ID, resp.ID)
	}

	if c.cfg.Verbose {
		c.logger.Info("rpc call",
			slog.String("worker_id", c.cfg.ID),
			slog.String("method", method),
			slog.Duration("elapsed", time.Since(start)))
	}

	if err := resp.DecodeResult(result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	return nil
}

func (c *Client) transportErr(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", method, ctxErr)
	}

	return fmt.Errorf("%s: %w", method, err)
}
