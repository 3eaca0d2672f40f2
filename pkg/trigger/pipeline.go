package trigger

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/template"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
	"github.com/kart-io/relayhub/pkg/workflow"
)

// Environment scopes a trigger to one organization/environment pair.
// All records a trigger produces carry both ids.
type Environment struct {
	OrganizationID string
	EnvironmentID  string
}

// Request is one event trigger call.
type Request struct {
	// Name identifies the workflow template to run.
	Name string `json:"name"`

	// To lists recipients: external subscriber id strings, inline
	// subscriber definitions, or topic references.
	To []any `json:"to"`

	// Payload is merged into every channel step's render data.
	Payload map[string]any `json:"payload,omitempty"`

	// Attachments are passed through to channels that render them.
	Attachments []notification.Attachment `json:"attachments,omitempty"`
}

// Result acknowledges a processed trigger.
type Result struct {
	TransactionID string `json:"transactionId"`
	Acknowledged  bool   `json:"acknowledged"`
	Status        string `json:"status"`
}

// Pipeline orchestrates trigger fan-out: workflow resolution, recipient
// normalization, topic expansion, inline registration, deduplication,
// message materialization and job handoff.
type Pipeline struct {
	workflows     *workflow.Registry
	stores        *store.Stores
	queue         queue.Queue
	engine        *template.Engine
	registrar     *Registrar
	telemetry     *observability.TelemetryProvider
	logger        logger.Logger
	topicsEnabled bool
	maxRetries    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTopicNotifications toggles topic-type recipients. When disabled,
// topic entries in the `to` list are rejected.
func WithTopicNotifications(enabled bool) Option {
	return func(p *Pipeline) { p.topicsEnabled = enabled }
}

// WithTelemetry attaches a telemetry provider.
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(p *Pipeline) { p.telemetry = tp }
}

// WithMaxRetries sets the retry limit stamped on materialized jobs.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) { p.maxRetries = n }
}

// NewPipeline creates a trigger pipeline over the given stores and queue.
func NewPipeline(workflows *workflow.Registry, stores *store.Stores, q queue.Queue, log logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.Discard
	}
	p := &Pipeline{
		workflows:     workflows,
		stores:        stores,
		queue:         q,
		engine:        template.NewEngine(log),
		registrar:     NewRegistrar(stores.Subscribers, log),
		logger:        log,
		topicsEnabled: true,
		maxRetries:    3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Trigger runs one event trigger end to end. On success every resolved
// subscriber has a notification, its channel messages are stored, and
// one job per message has been enqueued. Any validation or rendering
// failure rejects the whole trigger before anything is enqueued.
func (p *Pipeline) Trigger(ctx context.Context, env Environment, req *Request) (*Result, error) {
	start := time.Now()
	transactionID := idgen.TransactionID()

	ctx, span := p.telemetry.TraceTrigger(ctx, req.Name, transactionID, len(req.To))
	defer span.End()

	wf, err := p.workflows.Resolve(req.Name)
	if err != nil {
		p.telemetry.SetSpanError(span, err)
		return nil, err
	}

	recipients, err := NormalizeRecipients(req.To, p.topicsEnabled)
	if err != nil {
		p.telemetry.SetSpanError(span, err)
		return nil, err
	}

	subs, err := p.resolveSubscribers(ctx, env, recipients)
	if err != nil {
		p.telemetry.SetSpanError(span, err)
		return nil, err
	}

	pl, err := p.buildPlan(env, wf, subs, req, transactionID)
	if err != nil {
		p.telemetry.SetSpanError(span, err)
		return nil, err
	}

	if err := p.persist(ctx, pl); err != nil {
		p.telemetry.SetSpanError(span, err)
		return nil, err
	}

	// Jobs go out last so a validation or persistence failure never
	// leaves a partial job set behind. An enqueue failure mid-loop is
	// the one exception: the jobs already handed off stay queued and
	// their deliveries proceed, while the caller sees the error. The
	// stored messages and log entries remain the record of what was
	// materialized.
	for _, job := range pl.jobs {
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.telemetry.SetSpanError(span, err)
			return nil, errors.Wrap(err, errors.CodeInternal, "enqueue job "+job.ID)
		}
	}

	p.telemetry.SetSpanSuccess(span)
	p.telemetry.RecordTrigger(ctx, req.Name, len(subs), time.Since(start))
	p.logger.Info("trigger processed",
		"template", req.Name,
		"transactionId", transactionID,
		"subscribers", len(subs),
		"messages", len(pl.messages),
		"jobs", len(pl.jobs))

	return &Result{
		TransactionID: transactionID,
		Acknowledged:  true,
		Status:        "processed",
	}, nil
}

// resolveSubscribers expands recipients to stored subscriber records,
// deduplicated by external subscriber id in first-seen order. Unknown
// subscriber ids and missing topic members are skipped; an unknown
// topic key rejects the trigger.
func (p *Pipeline) resolveSubscribers(ctx context.Context, env Environment, recipients []Recipient) ([]*subscriber.Subscriber, error) {
	seen := make(map[string]bool)
	subs := make([]*subscriber.Subscriber, 0, len(recipients))

	add := func(sub *subscriber.Subscriber) {
		if seen[sub.SubscriberID] {
			return
		}
		seen[sub.SubscriberID] = true
		subs = append(subs, sub)
	}

	for _, r := range recipients {
		switch r.Kind {
		case RecipientSubscriber:
			sub, err := p.stores.Subscribers.FindBySubscriberID(ctx, env.EnvironmentID, r.SubscriberID)
			if err != nil {
				if stderrors.Is(err, store.ErrNotFound) {
					p.logger.Warn("skipping unknown subscriber", "subscriberId", r.SubscriberID)
					continue
				}
				return nil, errors.Wrap(err, errors.CodeInternal, "find subscriber "+r.SubscriberID)
			}
			add(sub)

		case RecipientInline:
			sub, err := p.registrar.Ensure(ctx, env, r.Inline)
			if err != nil {
				return nil, err
			}
			add(sub)

		case RecipientTopic:
			t, err := p.stores.Topics.FindByKey(ctx, env.EnvironmentID, r.TopicKey)
			if err != nil {
				if stderrors.Is(err, store.ErrNotFound) {
					return nil, errors.TopicNotFound(r.TopicKey)
				}
				return nil, errors.Wrap(err, errors.CodeInternal, "find topic "+r.TopicKey)
			}
			for _, id := range t.Subscribers {
				if seen[id] {
					continue
				}
				sub, err := p.stores.Subscribers.FindBySubscriberID(ctx, env.EnvironmentID, id)
				if err != nil {
					if stderrors.Is(err, store.ErrNotFound) {
						p.logger.Warn("skipping missing topic member",
							"topicKey", r.TopicKey, "subscriberId", id)
						continue
					}
					return nil, errors.Wrap(err, errors.CodeInternal, "find subscriber "+id)
				}
				add(sub)
			}
		}
	}

	return subs, nil
}

// persist writes the plan's notifications, messages and log entries.
func (p *Pipeline) persist(ctx context.Context, pl *plan) error {
	for _, n := range pl.notifications {
		if err := p.stores.Notifications.Create(ctx, n); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "store notification "+n.ID)
		}
	}
	for _, m := range pl.messages {
		if err := p.stores.Messages.Create(ctx, m); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "store message "+m.ID)
		}
	}
	for _, entry := range pl.logs {
		if err := p.stores.Logs.Append(ctx, entry); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "append log entry "+entry.ID)
		}
	}
	return nil
}
