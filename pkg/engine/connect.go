package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/model"
)

// Dashboard connect options a service provider can carry in
// coin:dashboard_connect_option.
const (
	ConnectWithInteraction           = "connect_with_interaction"
	ConnectWithoutInteractionConsent = "connect_without_interaction_with_consent"
	ConnectWithoutInteractionNone    = "connect_without_interaction_without_consent"
)

// ConnectResult reports which sides of the connection were modified.
type ConnectResult struct {
	IdentityProviderUpdated bool `json:"idp_updated"`
	ServiceProviderUpdated  bool `json:"sp_updated"`
}

// ConnectWithoutInteraction connects an identity provider to a service
// provider without an administrator in the loop. The service provider must
// opt in through coin:dashboard_connect_option; otherwise the connection is
// a policy violation. Each side that does not already allow the other gets a
// new revision with the peer appended to allowedEntities, and the downstream
// consumer is notified when anything changed.
func (s *Service) ConnectWithoutInteraction(ctx context.Context, idpEntityID, spEntityID, spType, actor string) (*ConnectResult, error) {
	defer s.observe("connectWithoutInteraction", spType, time.Now())

	idp, err := s.FindByEntityID(ctx, model.IdentityProvider.String(), idpEntityID)
	if err != nil {
		return nil, err
	}
	sp, err := s.FindByEntityID(ctx, spType, spEntityID)
	if err != nil {
		return nil, err
	}

	option, _ := sp.MetaDataFields()["coin:dashboard_connect_option"].(string)
	switch option {
	case ConnectWithoutInteractionConsent, ConnectWithoutInteractionNone:
	default:
		return nil, &model.PolicyViolationError{Reason: spEntityID + " does not allow connecting without interaction"}
	}

	result := &ConnectResult{}
	result.IdentityProviderUpdated, err = s.allowEntity(ctx, idp.Type, idp.ID, spEntityID, actor, "Connected to "+spEntityID+" without interaction")
	if err != nil {
		return nil, err
	}
	result.ServiceProviderUpdated, err = s.allowEntity(ctx, sp.Type, sp.ID, idpEntityID, actor, "Connected to "+idpEntityID+" without interaction")
	if err != nil {
		return nil, err
	}

	if result.IdentityProviderUpdated || result.ServiceProviderUpdated {
		s.notifier.Notify()
	}
	s.log.WithFields(logrus.Fields{
		"idp":   idpEntityID,
		"sp":    spEntityID,
		"actor": actor,
	}).Info("connected without interaction")
	return result, nil
}

// allowEntity appends entityID to the record's allowedEntities as a new
// revision, unless the record already allows everyone or that entity. The
// record is re-read from the store so read-time hook enrichments are not
// written back.
func (s *Service) allowEntity(ctx context.Context, entityType, id, entityID, actor, note string) (bool, error) {
	previous, err := s.store.FindByID(ctx, id, entityType)
	if err != nil {
		return false, err
	}
	if previous == nil {
		return false, &model.NotFoundError{ID: id, Type: entityType}
	}
	if allowedAll, _ := previous.Data["allowedall"].(bool); allowedAll {
		return false, nil
	}
	allowed, _ := previous.Data["allowedEntities"].([]interface{})
	for _, entry := range allowed {
		if m, ok := entry.(map[string]interface{}); ok && m["name"] == entityID {
			return false, nil
		}
	}

	record := previous.Copy()
	list, _ := record.Data["allowedEntities"].([]interface{})
	record.Data["allowedEntities"] = append(list, map[string]interface{}{"name": entityID})
	if err := s.commitRevision(ctx, previous, record, actor, note); err != nil {
		return false, err
	}
	return true, nil
}
