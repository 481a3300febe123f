package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSListener answers run requests published on a subject. Replies carry
// the agent.Result JSON or an ErrorResponse.
type NATSListener struct {
	svc     *Service
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenNATS connects to url and subscribes to subject. A non-empty queue
// load-balances requests across replicas.
func ListenNATS(svc *Service, url, subject, queue string) (*NATSListener, error) {
	conn, err := nats.Connect(url,
		nats.Name("gatedagent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				svc.logger.Warn("nats disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			svc.logger.Info("nats reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &NATSListener{svc: svc, conn: conn, subject: subject, ctx: ctx, cancel: cancel}

	if queue != "" {
		l.sub, err = conn.QueueSubscribe(subject, queue, l.onMsg)
	} else {
		l.sub, err = conn.Subscribe(subject, l.onMsg)
	}
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	svc.logger.Info("listening on nats", map[string]interface{}{
		"url":     conn.ConnectedUrl(),
		"subject": subject,
		"queue":   queue,
	})
	return l, nil
}

// onMsg runs each request on its own goroutine so a long run does not
// block the subscription.
func (l *NATSListener) onMsg(msg *nats.Msg) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		reply := l.svc.handle(l.ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			l.svc.logger.Warn("nats reply failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// Close stops accepting requests, cancels in-flight runs, waits for them
// to reply and drains the connection.
func (l *NATSListener) Close() error {
	if err := l.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		l.svc.logger.Warn("nats unsubscribe failed", map[string]interface{}{"error": err.Error()})
	}
	l.cancel()
	l.wg.Wait()
	return l.conn.Drain()
}
