package mgmt

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/models"
)

// Client issues control requests over a Transport. It never retries;
// retry policy belongs to the supervisor.
type Client struct {
	transport *Transport
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewClient creates a client on top of t. m may be nil.
func NewClient(t *Transport, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: t, logger: logger, metrics: m}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// ConnectTunnel asks the daemon to bring the tunnel up. changed is the
// daemon's acknowledgment that a transition was started; it says nothing
// about the resulting state.
func (c *Client) ConnectTunnel(ctx context.Context) (changed bool, err error) {
	return c.command(ctx, MethodConnectTunnel, models.CommandConnect)
}

// DisconnectTunnel asks the daemon to bring the tunnel down.
func (c *Client) DisconnectTunnel(ctx context.Context) (changed bool, err error) {
	return c.command(ctx, MethodDisconnectTunnel, models.CommandDisconnect)
}

func (c *Client) command(ctx context.Context, method string, cmd models.Command) (bool, error) {
	var ack wrapperspb.BoolValue
	if err := c.transport.Invoke(ctx, method, &emptypb.Empty{}, &ack); err != nil {
		c.metrics.Command(cmd.String(), "error")
		return false, fmt.Errorf("%s tunnel: %w", cmd, err)
	}
	c.metrics.Command(cmd.String(), "ok")
	return ack.GetValue(), nil
}

// GetTunnelState returns the daemon's current tunnel state.
func (c *Client) GetTunnelState(ctx context.Context) (models.TunnelState, error) {
	var msg structpb.Struct
	if err := c.transport.Invoke(ctx, MethodGetTunnelState, &emptypb.Empty{}, &msg); err != nil {
		return models.TunnelState{}, fmt.Errorf("get tunnel state: %w", err)
	}
	state, err := DecodeTunnelState(&msg)
	if err != nil {
		c.logger.Warn("dropping malformed tunnel state", zap.Error(err))
		return models.TunnelState{}, fmt.Errorf("get tunnel state: %w", err)
	}
	return state, nil
}
