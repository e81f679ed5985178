package engine

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/model"
)

// Merge applies a partial update to the current record and commits it as a
// new revision, but only when the update actually changed the protocol
// attributes. Change detection compares the metaDataFields submap before and
// after; top-level edits alone do not trigger a commit unless
// forceNewRevision is set. A merge that changes nothing returns (nil, nil).
// An empty note falls back to the revisionnote carried by the patched data.
func (s *Service) Merge(ctx context.Context, update *model.MetaDataUpdate, actor, note string, forceNewRevision bool) (*model.MetaData, error) {
	previous, err := s.store.FindByID(ctx, update.ID, update.Type)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, &model.NotFoundError{ID: update.ID, Type: update.Type}
	}

	record := previous.Copy()
	record.Merge(update)
	for key, value := range update.ExternalReferenceData {
		record.Data[key] = value
	}

	record, err = s.hooks.PreUpdate(ctx, previous.Copy(), record)
	if err != nil {
		return nil, err
	}
	record, err = s.validate(ctx, record)
	if err != nil {
		return nil, err
	}

	changed := !reflect.DeepEqual(previous.MetaDataFields(), record.MetaDataFields())
	if !changed && !forceNewRevision {
		s.log.WithFields(logrus.Fields{"id": update.ID, "type": update.Type}).Debug("merge produced no metadata changes, skipping revision")
		return nil, nil
	}

	if note == "" {
		note, _ = record.Data["revisionnote"].(string)
	}
	if err := s.commitRevision(ctx, previous, record, actor, note); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": record.ID, "type": record.Type, "actor": actor, "forced": forceNewRevision && !changed}).Info("merged metadata update")

	return s.Get(ctx, record.Type, record.ID)
}

// commitRevision archives previous and promotes record on top of it as the
// next revision. Two writes, no transaction; see the package comment.
func (s *Service) commitRevision(ctx context.Context, previous, record *model.MetaData, actor, note string) error {
	archive := previous.Copy()
	archive.ToRevision(uuid.NewString())
	if err := s.store.Save(ctx, archive); err != nil {
		return err
	}
	record.PromoteToLatest(actor, note)
	return s.store.Update(ctx, record)
}
