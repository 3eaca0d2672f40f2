package trigger

import (
	"time"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
	"github.com/kart-io/relayhub/pkg/workflow"
)

// plan is the complete set of records one trigger produces. It is built
// entirely in memory before anything is persisted or enqueued, so a
// rendering failure rejects the trigger without a partial job set.
type plan struct {
	notifications []*notification.Notification
	messages      []*notification.Message
	jobs          []*queue.Job
	logs          []*notification.LogEntry
}

// buildPlan materializes notifications, channel messages, delivery jobs
// and execution log entries for the resolved subscriber set. One
// notification per subscriber, one message and one job per active step.
func (p *Pipeline) buildPlan(env Environment, wf *workflow.Workflow, subs []*subscriber.Subscriber, req *Request, transactionID string) (*plan, error) {
	now := time.Now()
	steps := wf.ActiveSteps()

	out := &plan{
		notifications: make([]*notification.Notification, 0, len(subs)),
		messages:      make([]*notification.Message, 0, len(subs)*len(steps)),
		jobs:          make([]*queue.Job, 0, len(subs)*len(steps)),
		logs:          make([]*notification.LogEntry, 0, 1+len(subs)),
	}

	out.logs = append(out.logs, &notification.LogEntry{
		ID:             idgen.LogEntryID(),
		OrganizationID: env.OrganizationID,
		EnvironmentID:  env.EnvironmentID,
		TransactionID:  transactionID,
		Text:           notification.LogTriggerReceived,
		CreatedAt:      now,
	})

	for _, sub := range subs {
		n := &notification.Notification{
			ID:             idgen.NotificationID(),
			OrganizationID: env.OrganizationID,
			EnvironmentID:  env.EnvironmentID,
			SubscriberID:   sub.SubscriberID,
			TemplateID:     wf.ID,
			TransactionID:  transactionID,
			CreatedAt:      now,
		}
		out.notifications = append(out.notifications, n)

		out.logs = append(out.logs, &notification.LogEntry{
			ID:             idgen.LogEntryID(),
			OrganizationID: env.OrganizationID,
			EnvironmentID:  env.EnvironmentID,
			SubscriberID:   sub.SubscriberID,
			TransactionID:  transactionID,
			Text:           notification.LogRequestProcessed,
			CreatedAt:      now,
		})

		for _, step := range steps {
			msg, err := p.buildMessage(env, n, sub, step, req, now)
			if err != nil {
				return nil, err
			}
			out.messages = append(out.messages, msg)

			// In-app messages land in the feed at materialization time;
			// outbound channels are logged when their job runs.
			if step.Channel == notification.ChannelInApp {
				out.logs = append(out.logs, &notification.LogEntry{
					ID:             idgen.LogEntryID(),
					OrganizationID: env.OrganizationID,
					EnvironmentID:  env.EnvironmentID,
					SubscriberID:   sub.SubscriberID,
					TransactionID:  transactionID,
					Text:           notification.ChannelMessageCreated(step.Channel),
					CreatedAt:      now,
				})
			}

			out.jobs = append(out.jobs, &queue.Job{
				ID:             idgen.JobID(),
				MessageID:      msg.ID,
				NotificationID: n.ID,
				OrganizationID: env.OrganizationID,
				EnvironmentID:  env.EnvironmentID,
				SubscriberID:   sub.SubscriberID,
				TemplateID:     wf.ID,
				TransactionID:  transactionID,
				Channel:        step.Channel,
				Payload:        msg.GetPayload(),
				Attachments:    msg.Attachments,
				Status:         queue.StatusPending,
				MaxRetries:     p.maxRetries,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
	}

	return out, nil
}

// buildMessage renders one channel step for one subscriber.
func (p *Pipeline) buildMessage(env Environment, n *notification.Notification, sub *subscriber.Subscriber, step workflow.Step, req *Request, now time.Time) (*notification.Message, error) {
	data := map[string]any{
		"payload":    req.Payload,
		"subscriber": sub.RenderContext(),
		"step": map[string]any{
			"channel": step.Channel.String(),
		},
	}

	content, err := p.engine.Render(step.Content, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTemplateRender,
			"render "+step.Channel.String()+" content for "+sub.SubscriberID)
	}

	msg := &notification.Message{
		ID:             idgen.MessageID(),
		NotificationID: n.ID,
		OrganizationID: env.OrganizationID,
		EnvironmentID:  env.EnvironmentID,
		SubscriberID:   sub.SubscriberID,
		TemplateID:     n.TemplateID,
		TransactionID:  n.TransactionID,
		Channel:        step.Channel,
		Content:        content,
		Payload:        req.Payload,
		CreatedAt:      now,
	}

	switch step.Channel {
	case notification.ChannelInApp:
		msg.Seen = false
		msg.CTA = step.CTA
	case notification.ChannelEmail:
		msg.Email = sub.Email
		if step.Subject != "" {
			subject, err := p.engine.Render(step.Subject, data)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeTemplateRender,
					"render email subject for "+sub.SubscriberID)
			}
			msg.Subject = subject
		}
	case notification.ChannelSMS:
		msg.Phone = sub.Phone
	}

	if step.Channel.SupportsAttachments() {
		msg.Attachments = req.Attachments
	}

	return msg, nil
}
