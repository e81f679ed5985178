package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/model"
)

// Orphan is an archived revision whose write sequence never completed: its
// parent id has no current record and no termination marker accounts for the
// entity being deleted.
type Orphan struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	ParentID string `json:"parentId"`
}

// SweepOrphanedArchives scans all revision collections for archives left
// behind by a crash between the archive write and the promote write. Orphans
// are reported, not repaired: whether to re-promote or discard one is an
// operator decision.
func (s *Service) SweepOrphanedArchives(ctx context.Context) ([]Orphan, error) {
	var orphans []Orphan

	for _, entityType := range []model.EntityType{model.ServiceProvider, model.IdentityProvider, model.RelyingParty, model.SingleTenantTemplate} {
		revisions, err := s.store.FindByFilter(ctx, entityType.RevisionType(), nil, true, nil)
		if err != nil {
			return nil, err
		}

		// A termination marker points at the archive written alongside it,
		// and that archive points at the deleted entity. Every archive of a
		// deleted entity is accounted for, not orphaned.
		byID := map[string]*model.MetaData{}
		for _, revision := range revisions {
			byID[revision.ID] = revision
		}
		deletedEntities := map[string]bool{}
		for _, revision := range revisions {
			if revision.Revision == nil || !revision.Revision.Terminated {
				continue
			}
			if archive := byID[revision.Revision.ParentID]; archive != nil && archive.Revision != nil {
				deletedEntities[archive.Revision.ParentID] = true
			}
		}

		for _, revision := range revisions {
			if revision.Revision == nil || revision.Revision.Terminated || deletedEntities[revision.Revision.ParentID] {
				continue
			}
			parent, err := s.store.FindByID(ctx, revision.Revision.ParentID, entityType.String())
			if err != nil {
				return nil, err
			}
			if parent != nil {
				continue
			}
			orphans = append(orphans, Orphan{ID: revision.ID, Type: revision.Type, ParentID: revision.Revision.ParentID})
			s.log.WithFields(logrus.Fields{
				"id":       revision.ID,
				"type":     revision.Type,
				"parentId": revision.Revision.ParentID,
			}).Warn("orphaned archive without promoted successor")
		}
	}

	if s.metrics != nil {
		s.metrics.OrphanedArchives.Set(float64(len(orphans)))
	}
	return orphans, nil
}
