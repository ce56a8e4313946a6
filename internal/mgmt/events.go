package mgmt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mulltray/mulltray/internal/metrics"
	"github.com/mulltray/mulltray/internal/models"
)

// Subscription is one open EventsListen stream. It cannot be restarted;
// a new one is needed after every reconnect.
type Subscription struct {
	stream  *Stream
	logger  *zap.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
}

// Subscribe opens the daemon's event stream.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	stream, err := c.transport.OpenStream(ctx, MethodEventsListen, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &Subscription{
		stream:  stream,
		logger:  c.logger,
		metrics: c.metrics,
	}, nil
}

// Next blocks for the next tunnel state notification. Events of other
// kinds are skipped and malformed ones are logged and dropped. The error
// is ErrStreamClosed once the stream has ended.
func (s *Subscription) Next() (models.TunnelState, error) {
	for {
		var msg structpb.Struct
		if err := s.stream.Recv(&msg); err != nil {
			return models.TunnelState{}, err
		}

		state, ok, err := decodeEvent(&msg)
		if err != nil {
			s.logger.Warn("dropping malformed daemon event", zap.Error(err))
			s.metrics.Event("malformed")
			continue
		}
		if !ok {
			continue
		}
		return state, nil
	}
}

// Close cancels the stream so the transport releases it promptly.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.stream.Close)
}
