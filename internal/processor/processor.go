// Package processor consumes queued webhook events and drives them through
// normalization, dedup, tenant resolution, filtering, answer generation,
// the confidence gate, and outbound delivery.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/answergrid/internal/answer"
	"github.com/nextlevelbuilder/answergrid/internal/channels"
	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/dedup"
	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/format"
	"github.com/nextlevelbuilder/answergrid/internal/queue"
	"github.com/nextlevelbuilder/answergrid/internal/store"
	"github.com/nextlevelbuilder/answergrid/internal/tenant"
)

// Error kinds recorded on failed events. These classify outcomes for
// audit/dead-letter rows; raw error text never reaches an end user.
const (
	ErrKindUpstream    = "UPSTREAM_FAILURE"
	ErrKindAuthRevoked = "BACKEND_AUTH_REVOKED"
	ErrKindMalformed   = "MALFORMED_PAYLOAD"
	ErrKindSendFailed  = "CHANNEL_SEND_FAILURE"
	ErrKindExhausted   = "MAX_DELIVERIES_EXCEEDED"
)

// Audit action names.
const (
	actionReplySent     = "reply.sent"
	actionReplySilenced = "reply.silenced"
	actionReplyFailed   = "reply.failed"
	actionRevoked       = "integration.revoked"
)

// historyLimit caps the prior turns passed to the answer backend.
const historyLimit = 10

// AnswerClient is the answer-backend dependency.
type AnswerClient interface {
	Query(ctx context.Context, req answer.QueryRequest) (*answer.Result, error)
}

// TypingNotifier is implemented by senders that can show an in-progress
// indicator. Optional; only the group-chat channel has one.
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, msg channels.OutboundMessage)
}

// Processor is the async half of the pipeline.
type Processor struct {
	queue    queue.Queue
	guard    dedup.Guard
	resolver *tenant.Resolver
	filter   *Filter
	client   AnswerClient
	senders  map[string]channels.Sender
	stores   *store.Stores

	tunablesMu    sync.RWMutex
	threshold     float64
	silenceText   string
	suggestions   []string
	workers       int
	maxDeliveries int

	tracer trace.Tracer
	now    func() time.Time
}

func New(q queue.Queue, guard dedup.Guard, resolver *tenant.Resolver, client AnswerClient, senders map[string]channels.Sender, stores *store.Stores, cfg *config.Config) *Processor {
	threshold := cfg.Silence.Threshold
	if threshold <= 0 {
		threshold = answer.DefaultThreshold
	}
	silenceText := cfg.Silence.Reasoning
	if silenceText == "" {
		silenceText = "I'm not confident enough in the available sources to answer that."
	}
	workers := cfg.Workers.Count
	if workers <= 0 {
		workers = 4
	}
	maxDeliveries := cfg.Queue.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Processor{
		queue:         q,
		guard:         guard,
		resolver:      resolver,
		filter:        NewFilter(cfg.Filter),
		client:        client,
		senders:       senders,
		stores:        stores,
		threshold:     threshold,
		silenceText:   silenceText,
		suggestions:   cfg.Silence.Suggestions,
		workers:       workers,
		maxDeliveries: maxDeliveries,
		tracer:        otel.Tracer("answergrid/processor"),
		now:           time.Now,
	}
}

// UpdateTunables applies a reloaded config's gate settings without a
// restart. Secrets and wiring (queue, stores, senders) are not reloadable.
func (p *Processor) UpdateTunables(cfg *config.Config) {
	p.tunablesMu.Lock()
	defer p.tunablesMu.Unlock()
	if cfg.Silence.Threshold > 0 {
		p.threshold = cfg.Silence.Threshold
	}
	if cfg.Silence.Reasoning != "" {
		p.silenceText = cfg.Silence.Reasoning
	}
	p.suggestions = cfg.Silence.Suggestions
	p.filter = NewFilter(cfg.Filter)
	slog.Info("processor tunables reloaded", "threshold", p.threshold)
}

func (p *Processor) tunables() (float64, string, []string) {
	p.tunablesMu.RLock()
	defer p.tunablesMu.RUnlock()
	return p.threshold, p.silenceText, p.suggestions
}

// Run consumes the queue with a worker pool until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error { return p.worker(ctx) })
	}
	return g.Wait()
}

func (p *Processor) worker(ctx context.Context) error {
	for {
		qm, err := p.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			slog.Error("queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		p.handle(ctx, qm)
	}
}

// handle processes one delivery and decides its queue fate: ack on
// success, terminal drop, or dead-letter; no ack (redelivery) on errors
// worth retrying.
func (p *Processor) handle(ctx context.Context, qm *queue.Message) {
	ctx, span := p.tracer.Start(ctx, "processor.handle", trace.WithAttributes(
		attribute.String("queue.message_id", qm.ID),
		attribute.String("event.channel_type", qm.Attributes[queue.AttrChannelType]),
		attribute.Int("queue.delivery_count", qm.DeliveryCount),
	))
	defer span.End()

	if qm.DeliveryCount > p.maxDeliveries {
		slog.Error("event exhausted redeliveries, dead-lettering",
			"queue_message_id", qm.ID, "deliveries", qm.DeliveryCount)
		p.deadLetter(ctx, "unknown", qm, ErrKindExhausted, "delivery count exceeded maximum", nil)
		p.ack(ctx, qm)
		return
	}

	retry, err := p.process(ctx, qm)
	if err != nil && retry {
		slog.Warn("event processing failed, leaving for redelivery",
			"queue_message_id", qm.ID, "deliveries", qm.DeliveryCount, "error", err)
		return
	}
	if err != nil {
		slog.Error("event processing failed terminally", "queue_message_id", qm.ID, "error", err)
	}
	p.ack(ctx, qm)
}

// process runs the pipeline for one delivery. The returned bool says
// whether a failure is worth a redelivery.
func (p *Processor) process(ctx context.Context, qm *queue.Message) (bool, error) {
	channelType := qm.Attributes[queue.AttrChannelType]
	msg, err := event.Normalize(event.InboundEvent{
		Raw:         qm.Body,
		ChannelType: channelType,
		DecodedType: qm.Attributes[queue.AttrEventType],
		Attributes:  qm.Attributes,
	})
	if err != nil {
		if errors.Is(err, event.ErrUnsupportedType) {
			return false, nil
		}
		p.deadLetter(ctx, "unknown", qm, ErrKindMalformed, err.Error(), nil)
		return false, fmt.Errorf("normalize: %w", err)
	}

	// Fast path: shared TTL guard before any side effects. Guard errors
	// fail open; the thread store check below stays authoritative.
	dupKey := msg.DedupKey()
	seen, err := p.guard.Seen(ctx, dupKey)
	if err != nil {
		slog.Warn("dedup guard unavailable, continuing", "error", err)
	} else if seen {
		slog.Debug("duplicate event dropped", "dedup_key", dupKey)
		return false, nil
	}

	res, err := p.resolver.Resolve(ctx, msg.ChannelType, msg.RoutingKey)
	if err != nil {
		p.forget(ctx, dupKey)
		return true, fmt.Errorf("resolve tenant: %w", err)
	}
	tc := res.Context

	// Authoritative duplicate check, scoped to the tenant.
	if msg.ExternalMessageID != "" {
		recorded, err := p.stores.Threads.HasExternalMessage(ctx, tc.TenantID, msg.ExternalMessageID)
		if err != nil {
			p.forget(ctx, dupKey)
			return true, fmt.Errorf("duplicate check: %w", err)
		}
		if recorded {
			slog.Debug("event already recorded, dropping", "external_message_id", msg.ExternalMessageID)
			return false, nil
		}
	}

	p.tunablesMu.RLock()
	filter := p.filter
	p.tunablesMu.RUnlock()
	fr := filter.Apply(msg, tc)
	if !fr.Allow {
		slog.Debug("event filtered", "reason", fr.Reason, "channel_type", msg.ChannelType)
		return false, nil
	}

	return p.reply(ctx, qm, msg, tc, res.Source, fr.Query)
}

// reply runs answer generation and delivery for an event that passed all
// gates. From the moment the inbound turn is recorded the event is
// terminal: later failures degrade, they never trigger a redelivery.
func (p *Processor) reply(ctx context.Context, qm *queue.Message, msg *event.NormalizedMessage, tc tenant.Context, source, query string) (bool, error) {
	out := channels.OutboundMessage{
		RoutingKey: msg.RoutingKey,
		Recipient:  msg.SenderID,
		ThreadRef:  msg.ThreadRef,
		Credential: tc.Credential,
	}
	if sender, ok := p.senders[msg.ChannelType]; ok {
		if typing, ok := sender.(TypingNotifier); ok {
			typing.NotifyTyping(ctx, out)
		}
	}

	userID := tc.UserID
	if userID == "" {
		userID = msg.SenderID
	}
	thread, err := p.stores.Threads.FindOrCreate(ctx, tc.TenantID, userID, msg.ChannelType)
	if err != nil {
		p.forget(ctx, msg.DedupKey())
		return true, fmt.Errorf("find thread: %w", err)
	}
	// History is read before the inbound turn is appended so the current
	// question is not fed to the backend twice.
	history := p.history(ctx, tc.TenantID, userID)
	if err := p.stores.Threads.Append(ctx, thread.ID, &store.ThreadMessage{
		Role:              store.RoleUser,
		Channel:           msg.ChannelType,
		Content:           msg.Text,
		ExternalMessageID: msg.ExternalMessageID,
	}); err != nil {
		p.forget(ctx, msg.DedupKey())
		return true, fmt.Errorf("append inbound turn: %w", err)
	}

	decision, confidence := p.generate(ctx, tc, query, history)

	sendErr := p.send(ctx, msg, tc, out, decision)

	// Record keeping happens regardless of send outcome; the generated
	// content has diagnostic value either way.
	p.appendOutbound(ctx, thread.ID, msg.ChannelType, decision, confidence)
	p.audit(ctx, tc.TenantID, msg, query, decision, confidence, source)

	if sendErr != nil && errors.Is(sendErr, channels.ErrAuthRevoked) {
		p.revokeIntegration(ctx, qm, msg, tc, sendErr)
	}
	return false, nil
}

// generate queries the backend and applies the confidence gate.
func (p *Processor) generate(ctx context.Context, tc tenant.Context, query string, history []answer.HistoryTurn) (answer.ReplyDecision, *float64) {
	result, err := p.client.Query(ctx, answer.QueryRequest{Text: query, Persona: tc.Persona, History: history})
	if err != nil {
		slog.Error("answer backend query failed", "tenant_id", tc.TenantID, "error", err)
		return answer.NewError(ErrKindUpstream), nil
	}

	threshold, silenceText, suggestions := p.tunables()
	confidence := result.ConfidenceScore
	if answer.Decide(result.ConfidenceScore, result.ExplicitSilence, threshold) == answer.KindSilence {
		return answer.NewSilence(silenceText, suggestions), &confidence
	}
	blocks := answer.EnrichCitations(result.Citations, query, result.Text, p.now())
	return answer.NewAnswer(result.Text, blocks), &confidence
}

func (p *Processor) history(ctx context.Context, tenantID, userID string) []answer.HistoryTurn {
	msgs, err := p.stores.Threads.ListMessages(ctx, tenantID, userID, historyLimit)
	if err != nil {
		slog.Warn("history fetch failed, querying without context", "error", err)
		return nil
	}
	// ListMessages is newest first; the backend wants oldest first.
	turns := make([]answer.HistoryTurn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turns = append(turns, answer.HistoryTurn{Role: msgs[i].Role, Content: msgs[i].Content})
	}
	return turns
}

func (p *Processor) send(ctx context.Context, msg *event.NormalizedMessage, tc tenant.Context, out channels.OutboundMessage, decision answer.ReplyDecision) error {
	sender, ok := p.senders[msg.ChannelType]
	if !ok {
		slog.Error("no sender for channel", "channel_type", msg.ChannelType)
		return fmt.Errorf("%w: no sender for %s", channels.ErrSendFailed, msg.ChannelType)
	}
	out.Text = format.ForChannel(msg.ChannelType, decision)
	result, err := sender.Send(ctx, out)
	if err != nil {
		slog.Error("reply send failed", "channel_type", msg.ChannelType, "tenant_id", tc.TenantID, "error", err)
		return err
	}
	slog.Info("reply delivered",
		"channel_type", msg.ChannelType, "tenant_id", tc.TenantID,
		"decision", decision.Kind, "external_id", result.ExternalID)
	return nil
}

func (p *Processor) appendOutbound(ctx context.Context, threadID uuid.UUID, channel string, decision answer.ReplyDecision, confidence *float64) {
	content := decision.Text
	meta := map[string]string{"decision": decision.Kind}
	switch decision.Kind {
	case answer.KindSilence:
		content = decision.Reasoning
	case answer.KindError:
		content = format.GenericErrorText
		meta["error_kind"] = decision.ErrorKind
	}
	if lines := format.TimelineCitations(decision.Citations); lines != "" {
		meta[store.MetaCitations] = lines
	}
	err := p.stores.Threads.Append(ctx, threadID, &store.ThreadMessage{
		Role:       store.RoleAssistant,
		Channel:    channel,
		Content:    content,
		Confidence: confidence,
		Metadata:   meta,
	})
	if err != nil {
		slog.Error("outbound turn append failed", "thread_id", threadID, "error", err)
	}
}

// audit writes the diagnostic record. It never propagates failure: the
// audit path must not block a pipeline whose user-visible work is done.
func (p *Processor) audit(ctx context.Context, tenantID string, msg *event.NormalizedMessage, query string, decision answer.ReplyDecision, confidence *float64, source string) {
	action := actionReplySent
	response := decision.Text
	switch decision.Kind {
	case answer.KindSilence:
		action = actionReplySilenced
		response = decision.Reasoning
	case answer.KindError:
		action = actionReplyFailed
		response = decision.ErrorKind
	}
	rec := &store.AuditRecord{
		Actor:      tenantID + "/" + msg.SenderID,
		Action:     action,
		Channel:    msg.ChannelType,
		Query:      store.TruncateForAudit(query),
		Response:   store.TruncateForAudit(response),
		Confidence: confidence,
	}
	if err := p.stores.Audit.Append(ctx, rec); err != nil {
		slog.Error("audit append failed", "action", action, "tenant_id", tenantID, "error", err, "source", source)
	}
}

// revokeIntegration reacts to a credential-revoked send: the integration
// is flipped to error status, a diagnostic record is written, and the
// event is dead-lettered for replay after the tenant reconnects.
func (p *Processor) revokeIntegration(ctx context.Context, qm *queue.Message, msg *event.NormalizedMessage, tc tenant.Context, cause error) {
	if tc.Integration != nil {
		if err := p.stores.Integrations.SetStatus(ctx, tc.Integration.ID, store.IntegrationError); err != nil {
			slog.Error("integration status update failed", "integration_id", tc.Integration.ID, "error", err)
		}
	}
	if err := p.stores.Audit.Append(ctx, &store.AuditRecord{
		Actor:    tc.TenantID,
		Action:   actionRevoked,
		Channel:  msg.ChannelType,
		Response: store.TruncateForAudit(cause.Error()),
	}); err != nil {
		slog.Error("audit append failed", "action", actionRevoked, "error", err)
	}
	status := http.StatusUnauthorized
	p.deadLetter(ctx, tc.TenantID, qm, ErrKindAuthRevoked, cause.Error(), &status)
}

func (p *Processor) deadLetter(ctx context.Context, tenantID string, qm *queue.Message, kind, message string, status *int) {
	rec := &store.DeadLetterRecord{
		TenantID:       tenantID,
		QueueMessageID: qm.ID,
		EventType:      qm.Attributes[queue.AttrEventType],
		Payload:        qm.Body,
		ErrorMessage:   kind + ": " + message,
		ErrorStatus:    status,
	}
	if err := p.stores.DeadLetters.Append(ctx, rec); err != nil {
		slog.Error("dead-letter append failed", "queue_message_id", qm.ID, "error", err)
	}
}

func (p *Processor) ack(ctx context.Context, qm *queue.Message) {
	if err := p.queue.Ack(ctx, qm.ID); err != nil {
		slog.Error("queue ack failed", "queue_message_id", qm.ID, "error", err)
	}
}

func (p *Processor) forget(ctx context.Context, key string) {
	if err := p.guard.Forget(ctx, key); err != nil {
		slog.Debug("dedup forget failed", "dedup_key", key, "error", err)
	}
}
