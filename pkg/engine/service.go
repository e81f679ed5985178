// Package engine orchestrates the lifecycle of metadata records: create,
// update, delete, merge and restore, each committed as a new link in the
// record's immutable revision chain.
//
// Multi-write sequences (archive-then-promote, archive-then-terminate) are
// two separate store writes without a transaction around them. A crash
// between the writes leaves an archived copy without a promoted successor;
// the orphan sweep reports such records instead of the engine pretending the
// sequence is atomic.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/hooks"
	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/observability"
	"github.com/openfed/manage/pkg/push"
	"github.com/openfed/manage/pkg/schema"
	"github.com/openfed/manage/pkg/storage"
)

// Service is the revision engine.
type Service struct {
	store    storage.Store
	schemas  *schema.Registry
	hooks    *hooks.Composite
	notifier push.Notifier
	feeds    FeedSource
	log      *logrus.Logger
	metrics  *observability.Metrics
}

// NewService wires the engine with its collaborators. notifier and feeds may
// be nil; the corresponding operations then degrade to no-ops or errors.
func NewService(store storage.Store, schemas *schema.Registry, hookChain *hooks.Composite, notifier push.Notifier, feeds FeedSource, log *logrus.Logger, metrics *observability.Metrics) *Service {
	if notifier == nil {
		notifier = push.NoopNotifier{}
	}
	return &Service{
		store:    store,
		schemas:  schemas,
		hooks:    hookChain,
		notifier: notifier,
		feeds:    feeds,
		log:      log,
		metrics:  metrics,
	}
}

// Get loads the record and runs the post-read hooks over it.
func (s *Service) Get(ctx context.Context, entityType, id string) (*model.MetaData, error) {
	record, err := s.store.FindByID(ctx, id, entityType)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &model.NotFoundError{ID: id, Type: entityType}
	}
	return s.hooks.PostRead(ctx, record)
}

// Template returns a skeleton record of the given type with schema defaults.
func (s *Service) Template(entityType string) (*model.MetaData, error) {
	data, err := s.schemas.Template(entityType)
	if err != nil {
		return nil, err
	}
	return model.NewMetaData(entityType, data), nil
}

// Create persists a brand-new entity as revision 0. The entityid must be
// unused within the record's type family.
func (s *Service) Create(ctx context.Context, record *model.MetaData, actor string) (*model.MetaData, error) {
	defer s.observe("create", record.Type, time.Now())

	existing, err := s.UniqueEntityID(ctx, record.Type, record.EntityID())
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &model.DuplicateEntityIDError{EntityID: record.EntityID()}
	}

	record, err = s.hooks.PreCreate(ctx, record)
	if err != nil {
		return nil, s.fail("create", record, err)
	}
	record, err = s.validate(ctx, record)
	if err != nil {
		return nil, err
	}

	eid, err := s.store.NextCounterValue(ctx)
	if err != nil {
		return nil, err
	}
	record.Initial(uuid.NewString(), actor, eid)

	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": record.ID, "type": record.Type, "actor": actor}).Info("saved new metadata")

	return s.Get(ctx, record.Type, record.ID)
}

// Update replaces the current record: the previous state is archived first,
// then the new state is promoted with revision number + 1. The record's
// Version field carries the caller's optimistic version; a stale one fails
// with *model.ConflictError from the store.
func (s *Service) Update(ctx context.Context, record *model.MetaData, actor string) (*model.MetaData, error) {
	defer s.observe("update", record.Type, time.Now())

	existing, err := s.UniqueEntityID(ctx, record.Type, record.EntityID())
	if err != nil {
		return nil, err
	}
	for _, match := range existing {
		if match.ID != record.ID {
			return nil, &model.DuplicateEntityIDError{EntityID: record.EntityID()}
		}
	}

	previous, err := s.store.FindByID(ctx, record.ID, record.Type)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, &model.NotFoundError{ID: record.ID, Type: record.Type}
	}

	record, err = s.hooks.PreUpdate(ctx, previous.Copy(), record)
	if err != nil {
		return nil, err
	}
	record, err = s.validate(ctx, record)
	if err != nil {
		return nil, err
	}

	archive := previous.Copy()
	archive.ToRevision(uuid.NewString())
	if err := s.store.Save(ctx, archive); err != nil {
		return nil, err
	}

	note, _ := record.Data["revisionnote"].(string)
	rev := *previous.Revision
	record.Revision = &rev
	record.PromoteToLatest(actor, note)
	if err := s.store.Update(ctx, record); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": record.ID, "type": record.Type, "actor": actor}).Info("updated metadata")

	return s.Get(ctx, record.Type, record.ID)
}

// Delete removes the current record in two phases: archive it, then persist
// a terminated marker referencing the archive. No current record remains.
func (s *Service) Delete(ctx context.Context, entityType, id, actor, note string) error {
	defer s.observe("delete", entityType, time.Now())

	current, err := s.store.FindByID(ctx, id, entityType)
	if err != nil {
		return err
	}
	if current == nil {
		return &model.NotFoundError{ID: id, Type: entityType}
	}

	current, err = s.hooks.PreDelete(ctx, current)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, current); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"id": id, "type": entityType, "actor": actor}).Info("deleted metadata")

	current.ToRevision(uuid.NewString())
	if err := s.store.Save(ctx, current); err != nil {
		return err
	}
	current.Terminate(uuid.NewString(), note, actor)
	return s.store.Save(ctx, current)
}

// RestoreDeleted re-promotes an archived snapshot of a deleted entity. It is
// only legal when no current record exists under the archive's parent id;
// the snapshot is re-validated against the current schema because schema
// rules may have evolved since it was taken.
func (s *Service) RestoreDeleted(ctx context.Context, restore *model.RevisionRestore, actor string) (*model.MetaData, error) {
	defer s.observe("restoreDeleted", restore.ParentType, time.Now())

	revision, err := s.store.FindByID(ctx, restore.ID, restore.Type)
	if err != nil {
		return nil, err
	}
	if revision == nil || revision.Revision == nil {
		return nil, &model.NotFoundError{ID: restore.ID, Type: restore.Type}
	}

	parent, err := s.store.FindByID(ctx, revision.Revision.ParentID, restore.ParentType)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		return nil, &model.IllegalStateError{Reason: "cannot restore a deleted entity: a current record still exists under " + parent.ID}
	}

	newID := revision.Revision.ParentID
	revision.DeTerminate(newID)
	if err := s.store.Update(ctx, revision); err != nil {
		return nil, err
	}

	number := revision.Revision.Number
	revision.RestoreToLatest(newID, 0, actor, number, restore.ParentType)
	revision, err = s.validate(ctx, revision)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, revision); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": revision.ID, "type": revision.Type, "actor": actor}).Info("restored deleted metadata")

	return s.Get(ctx, revision.Type, revision.ID)
}

// RestoreRevision rolls the current record back to an archived snapshot.
// Unlike RestoreDeleted it requires a current record: the snapshot is
// promoted over it and the displaced record is archived afterwards, so the
// restore itself can be undone.
func (s *Service) RestoreRevision(ctx context.Context, restore *model.RevisionRestore, actor string) (*model.MetaData, error) {
	defer s.observe("restoreRevision", restore.ParentType, time.Now())

	revision, err := s.store.FindByID(ctx, restore.ID, restore.Type)
	if err != nil {
		return nil, err
	}
	if revision == nil || revision.Revision == nil {
		return nil, &model.NotFoundError{ID: restore.ID, Type: restore.Type}
	}

	parent, err := s.store.FindByID(ctx, revision.Revision.ParentID, restore.ParentType)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &model.IllegalStateError{Reason: "cannot restore a revision: no current record exists under " + revision.Revision.ParentID}
	}

	revision.RestoreToLatest(parent.ID, parent.Version, actor, parent.Revision.Number, restore.ParentType)
	revision, err = s.validate(ctx, revision)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, revision); err != nil {
		return nil, err
	}

	displaced := parent.Copy()
	displaced.ToRevision(uuid.NewString())
	if err := s.store.Save(ctx, displaced); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": revision.ID, "type": revision.Type, "actor": actor}).Info("restored metadata revision")

	return s.Get(ctx, revision.Type, revision.ID)
}

// Revisions lists the archived snapshots of an entity, ordered by revision
// number.
func (s *Service) Revisions(ctx context.Context, entityType, parentID string) ([]*model.MetaData, error) {
	return s.store.ListRevisions(ctx, entityType+model.RevisionSuffix, parentID)
}

// UniqueEntityID returns the records holding the given entityid within the
// type family of entityType.
func (s *Service) UniqueEntityID(ctx context.Context, entityType, entityID string) ([]*model.MetaData, error) {
	parsed, err := model.ParseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	filter := map[string]interface{}{"entityid": entityID}
	var results []*model.MetaData
	for _, familyType := range parsed.Family() {
		matches, err := s.store.FindByFilter(ctx, familyType.String(), filter, true, []string{"entityid"})
		if err != nil {
			return nil, err
		}
		results = append(results, matches...)
	}
	return results, nil
}

// FindByEntityID resolves an entityid to the current record within the type
// family of entityType.
func (s *Service) FindByEntityID(ctx context.Context, entityType, entityID string) (*model.MetaData, error) {
	matches, err := s.UniqueEntityID(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &model.NotFoundError{ID: entityID, Type: entityType}
	}
	return s.Get(ctx, matches[0].Type, matches[0].ID)
}

// Search exposes the store's filter queries, optionally projecting the
// requested attributes.
func (s *Service) Search(ctx context.Context, entityType string, filter map[string]interface{}, matchAll bool, requestedAttributes []string) ([]*model.MetaData, error) {
	return s.store.FindByFilter(ctx, entityType, filter, matchAll, requestedAttributes)
}

// RawSearch exposes the store's raw query interface.
func (s *Service) RawSearch(ctx context.Context, entityType, query string) ([]*model.MetaData, error) {
	return s.store.FindByRawQuery(ctx, entityType, query)
}

// Validate runs the pre-validate hooks and the schema validator without
// persisting anything.
func (s *Service) Validate(ctx context.Context, record *model.MetaData) error {
	_, err := s.validate(ctx, record)
	return err
}

func (s *Service) validate(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	record, err := s.hooks.PreValidate(ctx, record)
	if err != nil {
		return nil, err
	}
	if err := s.schemas.Validate(record.Data, record.Type); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) observe(operation, entityType string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.EngineOperationsTotal.WithLabelValues(operation, entityType).Inc()
	s.metrics.EngineOperationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *Service) fail(operation string, record *model.MetaData, err error) error {
	if s.metrics != nil && record != nil {
		s.metrics.EngineOperationErrors.WithLabelValues(operation, record.Type).Inc()
	}
	return err
}
