package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/newslett/ttsd/internal/config"
	"github.com/newslett/ttsd/internal/protocol"
)

// Announcer broadcasts node presence on the bus: one announce on startup and
// periodic heartbeats carrying pipeline readiness.
type Announcer struct {
	cfg     config.Config
	client  *Client
	ready   func() bool
	ticker  *time.Ticker
	cancel  context.CancelFunc
	log     *slog.Logger
	stopped chan struct{}
}

func NewAnnouncer(ctx context.Context, cfg config.Config, client *Client, ready func() bool, log *slog.Logger) *Announcer {
	ctx, cancel := context.WithCancel(ctx)
	a := &Announcer{
		cfg:     cfg,
		client:  client,
		ready:   ready,
		cancel:  cancel,
		log:     log.With(slog.String("component", "announcer")),
		stopped: make(chan struct{}),
	}

	if err := a.announce(); err != nil {
		a.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	a.ticker = time.NewTicker(time.Duration(cfg.Bus.HeartbeatInterval) * time.Millisecond)
	go a.run(ctx)

	return a
}

func (a *Announcer) Close() {
	a.cancel()
	<-a.stopped
}

func (a *Announcer) run(ctx context.Context) {
	defer close(a.stopped)
	defer a.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ticker.C:
			if err := a.heartbeat(); err != nil {
				a.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) announce() error {
	msg := protocol.Announce{
		NodeID:      a.cfg.Bus.NodeID,
		Service:     a.cfg.ServiceName,
		Environment: a.cfg.Environment,
		Voices:      []string{a.cfg.Pipeline.DefaultVoice},
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return a.client.Conn().Publish(protocol.SubjectNodeAnnounce, data)
}

func (a *Announcer) heartbeat() error {
	msg := protocol.Heartbeat{
		NodeID:      a.cfg.Bus.NodeID,
		ModelLoaded: a.ready(),
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectNodeHeartbeatPrefix, a.cfg.Bus.NodeID)
	return a.client.Conn().Publish(subject, data)
}
