package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/retry"
)

// NATSConfig configures a NATSPublisher.
type NATSConfig struct {
	URL     string
	Subject string
	// Stream, when set, publishes through JetStream into a stream of that
	// name, created on connect if missing. Otherwise core NATS is used.
	Stream string
	Retry  retry.Policy
	// Timeout bounds each publish attempt.
	Timeout time.Duration
	Logger  *slog.Logger
}

type sendFunc func(ctx context.Context, subject string, data []byte) error

// NATSPublisher publishes trial events as JSON.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	send    sendFunc
}

// ConnectNATS dials the server and prepares the publisher.
func ConnectNATS(ctx context.Context, cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, derrors.ConfigError("notify.nats_url is required when notifications are enabled").Build()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("detecttune"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, derrors.NotifyError("failed to connect to NATS").WithCause(err).WithContext("url", cfg.URL).Build()
	}

	p := newPublisher(cfg, nil)
	p.conn = conn
	p.send = func(_ context.Context, subject string, data []byte) error {
		if err := conn.Publish(subject, data); err != nil {
			return err
		}
		return conn.FlushTimeout(p.timeout)
	}

	if cfg.Stream != "" {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, derrors.NotifyError("failed to create JetStream context").WithCause(err).Build()
		}
		setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
			Name:        cfg.Stream,
			Description: "detecttune trial events",
			Subjects:    []string{p.subject},
		})
		if err != nil {
			conn.Close()
			return nil, derrors.NotifyError("failed to create JetStream stream").
				WithCause(err).WithContext("stream", cfg.Stream).Build()
		}
		p.send = func(ctx context.Context, subject string, data []byte) error {
			_, err := js.Publish(ctx, subject, data)
			return err
		}
	}

	p.logger.Info("NATS notifications enabled",
		slog.String("url", cfg.URL),
		slog.String("subject", p.subject),
		slog.String("stream", cfg.Stream))
	return p, nil
}

func newPublisher(cfg NATSConfig, send sendFunc) *NATSPublisher {
	p := &NATSPublisher{
		subject: cfg.Subject,
		policy:  cfg.Retry,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		send:    send,
	}
	if p.subject == "" {
		p.subject = DefaultSubject
	}
	if p.policy.Validate() != nil {
		p.policy = retry.DefaultPolicy()
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Publish sends ev, retrying transient failures with the configured backoff.
func (p *NATSPublisher) Publish(ctx context.Context, ev TrialEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal trial event: %w", err)
	}
	err = p.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.send(attemptCtx, p.subject, data)
	})
	if err != nil {
		return derrors.NotifyError("failed to publish trial event").
			WithCause(err).
			WithContext(logfields.KeyTrialID, ev.TrialID).
			Build()
	}
	p.logger.Debug("Published trial event", logfields.TrialID(ev.TrialID), logfields.Status(string(ev.Status)))
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn = nil
	return err
}
