package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skillswap/backend/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectNATS dials the NATS server used for the relay.
func ConnectNATS(url, nodeID string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("skillswap-"+nodeID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSRelay is a Relay over core NATS subjects.
type NATSRelay struct {
	nc  *nats.Conn
	log *zap.Logger
}

func NewNATSRelay(nc *nats.Conn, log *zap.Logger) *NATSRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSRelay{nc: nc, log: log}
}

func (r *NATSRelay) Publish(ctx context.Context, node string, env models.RelayEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.nc.Publish(relayChannel(node), payload)
}

func (r *NATSRelay) Subscribe(ctx context.Context, node string, handle func(models.RelayEnvelope)) error {
	sub, err := r.nc.Subscribe(relayChannel(node), func(msg *nats.Msg) {
		var env models.RelayEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.log.Warn("malformed relay payload", zap.Error(err))
			return
		}
		handle(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", relayChannel(node), err)
	}
	if err := r.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return err
	}

	<-ctx.Done()
	return sub.Unsubscribe()
}
