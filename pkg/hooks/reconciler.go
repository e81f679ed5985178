package hooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/storage"
)

// referenceFields are the attribute lists in which one entity names another
// by its entityid.
var referenceFields = []string{"allowedEntities", "disableConsent", "stepupEntities", "mfaEntities"}

var allEntityTypes = []model.EntityType{
	model.ServiceProvider,
	model.IdentityProvider,
	model.RelyingParty,
	model.SingleTenantTemplate,
}

// EntityIDReconcilerHook keeps cross-entity references consistent: when an
// entityid changes every record naming the old identifier is rewritten, and
// when an entity is deleted the dangling references are removed. Unlike other
// hooks it writes to the store, archiving each touched record first so the
// reconciliation itself is revisioned.
type EntityIDReconcilerHook struct {
	NoopHook
	store storage.Store
	log   *logrus.Logger
}

// NewEntityIDReconcilerHook creates the reconciler.
func NewEntityIDReconcilerHook(store storage.Store, log *logrus.Logger) *EntityIDReconcilerHook {
	return &EntityIDReconcilerHook{store: store, log: log}
}

func (h *EntityIDReconcilerHook) PreUpdate(ctx context.Context, previous, updated *model.MetaData) (*model.MetaData, error) {
	if previous == nil || previous.EntityID() == updated.EntityID() {
		return updated, nil
	}
	note := fmt.Sprintf("entityid of %s changed to %s", previous.EntityID(), updated.EntityID())
	if err := h.reconcile(ctx, previous.EntityID(), updated.EntityID(), note); err != nil {
		return nil, err
	}
	return updated, nil
}

func (h *EntityIDReconcilerHook) PreDelete(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	note := fmt.Sprintf("%s deleted, reference removed", record.EntityID())
	if err := h.reconcile(ctx, record.EntityID(), "", note); err != nil {
		return nil, err
	}
	return record, nil
}

// reconcile rewrites references to oldID; an empty newID removes them.
func (h *EntityIDReconcilerHook) reconcile(ctx context.Context, oldID, newID, note string) error {
	if oldID == "" {
		return nil
	}
	for _, entityType := range allEntityTypes {
		for _, field := range referenceFields {
			query := fmt.Sprintf("{%q: %q}", field+".name", oldID)
			referencing, err := h.store.FindByRawQuery(ctx, entityType.String(), query)
			if err != nil {
				return fmt.Errorf("failed to scan %s for references: %w", entityType, err)
			}
			for _, record := range referencing {
				if err := h.rewrite(ctx, record, field, oldID, newID, note); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (h *EntityIDReconcilerHook) rewrite(ctx context.Context, record *model.MetaData, field, oldID, newID, note string) error {
	previous := record.Copy()
	previous.ToRevision(uuid.NewString())
	if err := h.store.Save(ctx, previous); err != nil {
		return fmt.Errorf("failed to archive %s before reconciliation: %w", record.ID, err)
	}

	references, _ := record.Data[field].([]interface{})
	rewritten := make([]interface{}, 0, len(references))
	for _, element := range references {
		entry, ok := element.(map[string]interface{})
		if ok && entry["name"] == oldID {
			if newID == "" {
				continue
			}
			entry["name"] = newID
		}
		rewritten = append(rewritten, element)
	}
	record.Data[field] = rewritten

	record.PromoteToLatest("entityid-reconciler", note)
	if err := h.store.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to update %s during reconciliation: %w", record.ID, err)
	}
	h.log.WithFields(logrus.Fields{
		"id":    record.ID,
		"type":  record.Type,
		"field": field,
	}).Info("reconciled entityid reference")
	return nil
}
