// Package natsrelay carries outer relay calls and their completion
// notifications over NATS.
//
// Outer calls are published on usb.relay.<chain>.dispatch. The counterparty
// that submits them on chain publishes the outcome on
// usb.relay.<chain>.reply. Listen subscribes to the reply subject of every
// chain, so a batch sent to a chain other than the configured one is still
// answered.
package natsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bitsong/usb/internal/ir"
)

// SubjectPrefix is the root of every relay subject.
const SubjectPrefix = "usb.relay"

// DispatchSubject returns the subject outer calls for chain are published on.
func DispatchSubject(chain string) string {
	return SubjectPrefix + "." + chain + ".dispatch"
}

// ReplySubject returns the subject completion notifications for chain
// arrive on.
func ReplySubject(chain string) string {
	return SubjectPrefix + "." + chain + ".reply"
}

// ReplyWildcard matches the reply subject of every chain.
const ReplyWildcard = SubjectPrefix + ".*.reply"

// ErrNotConnected is returned when the relay has no usable connection.
var ErrNotConnected = errors.New("natsrelay: not connected")

// Subscription is an active reply subscription.
type Subscription interface {
	Unsubscribe() error
}

// Conn is the subset of a NATS connection the relay uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
}

// Deliverer accepts completion notifications. *engine.Engine implements it.
type Deliverer interface {
	Deliver(r ir.Reply) (ir.Reply, error)
}

// DispatchMessage is the payload published for an outer call.
type DispatchMessage struct {
	DispatchID string          `json:"dispatch_id"`
	BatchID    string          `json:"batch_id"`
	Sender     string          `json:"sender"`
	HostChain  string          `json:"host_chain"`
	ReplyToken uint64          `json:"reply_token"`
	Call       json.RawMessage `json:"call"`
}

// ReplyMessage is the payload received for a completed outer call.
type ReplyMessage struct {
	DispatchID string `json:"dispatch_id"`
	Token      uint64 `json:"token"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

// Relay implements engine.Relay over a NATS connection.
type Relay struct {
	conn Conn
}

// New returns a relay publishing on conn.
func New(conn Conn) *Relay {
	return &Relay{conn: conn}
}

// Send publishes d on the dispatch subject of its host chain.
func (r *Relay) Send(ctx context.Context, d ir.Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(DispatchMessage{
		DispatchID: d.ID,
		BatchID:    d.BatchID,
		Sender:     d.Sender,
		HostChain:  d.HostChain,
		ReplyToken: d.ReplyToken,
		Call:       json.RawMessage(d.Call),
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch %s: %w", d.ID, err)
	}

	subject := DispatchSubject(d.HostChain)
	if err := r.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	slog.Debug("dispatch published", "subject", subject, "dispatch_id", d.ID)
	return nil
}

// Listen subscribes to the reply subjects of all chains and hands each
// valid notification to d. Malformed messages are logged and dropped. The
// subscription ends when ctx is done or the returned Subscription is
// unsubscribed.
func (r *Relay) Listen(ctx context.Context, d Deliverer) (Subscription, error) {
	if r.conn == nil {
		return nil, ErrNotConnected
	}

	subject := ReplyWildcard
	sub, err := r.conn.Subscribe(subject, func(data []byte) {
		if err := handleReply(data, d); err != nil {
			slog.Warn("reply dropped", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	slog.Info("listening for replies", "subject", subject)
	return sub, nil
}

func handleReply(data []byte, d Deliverer) error {
	var msg ReplyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if msg.DispatchID == "" {
		return errors.New("reply has no dispatch_id")
	}
	_, err := d.Deliver(ir.Reply{
		DispatchID: msg.DispatchID,
		Token:      msg.Token,
		Outcome:    msg.Outcome,
		Error:      msg.Error,
		Data:       msg.Data,
	})
	return err
}

// natsConn adapts *nats.Conn to Conn.
type natsConn struct {
	nc *nats.Conn
}

func (c natsConn) Publish(subject string, data []byte) error {
	if !c.nc.IsConnected() {
		return ErrNotConnected
	}
	return c.nc.Publish(subject, data)
}

func (c natsConn) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Dial connects to the NATS server at url. The returned close function
// drains the connection.
func Dial(url, name string) (Conn, func() error, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return natsConn{nc: nc}, nc.Drain, nil
}
