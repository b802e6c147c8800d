// Package redis implements an approval gateway over Redis pub/sub.
// New approval requests are published to a channel for external
// approval UIs or bots; decisions arrive back on a second channel and
// are applied through the approval service, which resumes the suspended
// task.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	gw := approvalredis.New(client)
//	svc := approval.NewService(store, lg, engine, approval.WithGateway(gw))
//	go gw.Listen(ctx, svc)
package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/accord/approval"
	"github.com/xraph/accord/id"
)

const (
	// RequestChannel carries newly created approval requests.
	RequestChannel = "accord:approvals:requested"
	// DecisionChannel carries decisions from external approvers.
	DecisionChannel = "accord:approvals:decisions"
)

var _ approval.Gateway = (*Gateway)(nil)

// Gateway publishes approval requests to Redis and consumes decisions.
// The caller owns the Redis client lifecycle.
type Gateway struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Redis-backed approval gateway.
func New(client redis.UniversalClient, opts ...Option) *Gateway {
	g := &Gateway{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// requestMessage is the wire shape published for each new request.
type requestMessage struct {
	ApprovalID  string `json:"approval_id"`
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id"`
	Prompt      string `json:"prompt,omitempty"`
}

// decisionMessage is the wire shape external approvers publish back.
type decisionMessage struct {
	ApprovalID string          `json:"approval_id"`
	Approved   bool            `json:"approved"`
	DecidedBy  string          `json:"decided_by"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NotifyRequested publishes the approval request to RequestChannel.
func (g *Gateway) NotifyRequested(ctx context.Context, a *approval.Approval) error {
	msg, err := json.Marshal(requestMessage{
		ApprovalID:  a.ID.String(),
		ExecutionID: a.ExecutionID.String(),
		TaskID:      a.TaskID.String(),
		Prompt:      a.Prompt,
	})
	if err != nil {
		return err
	}
	return g.client.Publish(ctx, RequestChannel, msg).Err()
}

// Listen subscribes to DecisionChannel and applies each decision
// through the service. It blocks until the context is cancelled.
// Malformed or stale messages are logged and skipped; one bad approver
// must not wedge the channel.
func (g *Gateway) Listen(ctx context.Context, svc *approval.Service) error {
	sub := g.client.Subscribe(ctx, DecisionChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			g.handleDecision(ctx, svc, []byte(msg.Payload))
		}
	}
}

func (g *Gateway) handleDecision(ctx context.Context, svc *approval.Service, raw []byte) {
	var msg decisionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.logger.Warn("malformed approval decision", slog.String("error", err.Error()))
		return
	}

	approvalID, err := id.ParseApprovalID(msg.ApprovalID)
	if err != nil {
		g.logger.Warn("approval decision with bad id",
			slog.String("approval_id", msg.ApprovalID),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := svc.Decide(ctx, approvalID, msg.Approved, msg.DecidedBy, msg.Reason, msg.Payload); err != nil {
		g.logger.Error("approval decision not applied",
			slog.String("approval_id", msg.ApprovalID),
			slog.String("error", err.Error()),
		)
	}
}
