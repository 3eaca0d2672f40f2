package trigger

import (
	"context"
	"time"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/provider"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
)

// NewJobHandler returns the queue handler that executes delivery jobs.
// In-app messages are already in the subscriber's feed when the job
// runs, so their jobs complete without provider work. Outbound channels
// log the message creation and hand the stored message to the channel's
// sender.
func NewJobHandler(stores *store.Stores, providers *provider.Registry, log logger.Logger, telemetry *observability.TelemetryProvider) queue.Handler {
	if log == nil {
		log = logger.Discard
	}
	return func(ctx context.Context, job *queue.Job) error {
		if job.Channel == notification.ChannelInApp {
			telemetry.RecordJobProcessed(ctx, job.Channel.String())
			return nil
		}

		ctx, span := telemetry.TraceJob(ctx, job.ID, job.Channel.String())
		defer span.End()

		msg, err := stores.Messages.Get(ctx, job.MessageID)
		if err != nil {
			telemetry.SetSpanError(span, err)
			telemetry.RecordJobFailed(ctx, job.Channel.String(), "message_lookup")
			return errors.Wrap(err, errors.CodeInternal, "load message "+job.MessageID)
		}

		entry := &notification.LogEntry{
			ID:             idgen.LogEntryID(),
			OrganizationID: job.OrganizationID,
			EnvironmentID:  job.EnvironmentID,
			SubscriberID:   job.SubscriberID,
			TransactionID:  job.TransactionID,
			Text:           notification.ChannelMessageCreated(job.Channel),
			CreatedAt:      time.Now(),
		}
		if err := stores.Logs.Append(ctx, entry); err != nil {
			telemetry.SetSpanError(span, err)
			return errors.Wrap(err, errors.CodeInternal, "append log entry "+entry.ID)
		}

		sender, err := providers.Resolve(job.Channel)
		if err != nil {
			// No sender configured for the channel; the message stays
			// stored and the log entry stands.
			log.Warn("no sender for channel", "channel", job.Channel.String(), "jobId", job.ID)
			telemetry.RecordJobProcessed(ctx, job.Channel.String())
			telemetry.SetSpanSuccess(span)
			return nil
		}

		if err := sender.Send(ctx, msg); err != nil {
			telemetry.SetSpanError(span, err)
			telemetry.RecordJobFailed(ctx, job.Channel.String(), "send")
			return errors.Wrap(err, errors.CodeInternal, "send via "+sender.Name())
		}

		telemetry.RecordJobProcessed(ctx, job.Channel.String())
		telemetry.SetSpanSuccess(span)
		return nil
	}
}
