package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the subset of jetstream.JetStream used to publish snapshots.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSNotifier publishes snapshots to JetStream on <prefix>.<family>.
type NATSNotifier struct {
	nc     *nats.Conn
	js     Publisher
	prefix string
	log    *logger.Logger
}

// NewNATSNotifier creates a notifier over an existing publisher.
func NewNATSNotifier(js Publisher, prefix string, log *logger.Logger) *NATSNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &NATSNotifier{
		js:     js,
		prefix: prefix,
		log:    log.WithComponent(common.ComponentNotifier),
	}
}

// ConnectNATS connects to the configured server and makes sure the stream
// capturing the notification subjects exists.
func ConnectNATS(ctx context.Context, cfg *config.NotifierConfig, log *logger.Logger) (*NATSNotifier, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent(common.ComponentNotifier)

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait.Duration),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if cfg.Stream != "" {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.SubjectPrefix + ".>"},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
		}
	}

	n := NewNATSNotifier(js, cfg.SubjectPrefix, log)
	n.nc = nc

	return n, nil
}

// Notify publishes the snapshot and waits for the stream acknowledgement.
func (n *NATSNotifier) Notify(ctx context.Context, family model.Family, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot of %s: %w", snapshot.ID, err)
	}

	subject := n.Subject(family)
	// the message id lets the stream drop redelivered versions
	msgID := fmt.Sprintf("%s:%s:%d", family, snapshot.ID, snapshot.Version)
	if _, err := n.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", snapshot.ID, subject, err)
	}

	n.log.Debugf("published %s %s v%d", family, snapshot.ID, snapshot.Version)

	return nil
}

// Subject returns the subject snapshots of family are published on.
func (n *NATSNotifier) Subject(family model.Family) string {
	return n.prefix + "." + string(family)
}

// Close drains the connection, if the notifier owns one.
func (n *NATSNotifier) Close() error {
	if n.nc == nil {
		return nil
	}
	if err := n.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}
