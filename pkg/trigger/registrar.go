package trigger

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
)

// Registrar resolves inline subscriber definitions against the
// subscriber store, creating records that do not exist yet. Existing
// records are returned untouched; inline profile fields never overwrite
// a stored subscriber.
type Registrar struct {
	subscribers store.SubscriberStore
	logger      logger.Logger
}

// NewRegistrar creates a registrar backed by the given store.
func NewRegistrar(subscribers store.SubscriberStore, log logger.Logger) *Registrar {
	if log == nil {
		log = logger.Discard
	}
	return &Registrar{
		subscribers: subscribers,
		logger:      log,
	}
}

// Ensure returns the stored subscriber for def, creating it when
// absent. A concurrent create by another trigger is not an error; the
// record that won is re-read and returned.
func (r *Registrar) Ensure(ctx context.Context, env Environment, def *subscriber.Definition) (*subscriber.Subscriber, error) {
	existing, err := r.subscribers.FindBySubscriberID(ctx, env.EnvironmentID, def.SubscriberID)
	if err == nil {
		return existing, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.SubscriberRegistration(def.SubscriberID, err)
	}

	sub := &subscriber.Subscriber{
		ID:             idgen.SubscriberID(),
		OrganizationID: env.OrganizationID,
		EnvironmentID:  env.EnvironmentID,
		SubscriberID:   def.SubscriberID,
		FirstName:      def.FirstName,
		LastName:       def.LastName,
		Email:          def.Email,
		Phone:          def.Phone,
		CreatedAt:      time.Now(),
	}

	if err := r.subscribers.Create(ctx, sub); err != nil {
		if stderrors.Is(err, store.ErrAlreadyExists) {
			// Lost the race; the winner's record is authoritative.
			return r.subscribers.FindBySubscriberID(ctx, env.EnvironmentID, def.SubscriberID)
		}
		return nil, errors.SubscriberRegistration(def.SubscriberID, err)
	}

	r.logger.Debug("subscriber registered inline",
		"subscriberId", def.SubscriberID, "environmentId", env.EnvironmentID)
	return sub, nil
}
