package engine

import (
	"context"
	"errors"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/importer"
	"github.com/openfed/manage/pkg/model"
)

// FeedSource fetches an aggregate metadata feed. importer.Client is the
// production implementation.
type FeedSource interface {
	FetchFeed(ctx context.Context, url string) ([]importer.FeedEntity, error)
}

// Feed import outcome buckets.
const (
	FeedImported           = "imported"
	FeedMerged             = "merged"
	FeedNoChanges          = "no_changes"
	FeedNotImported        = "not_imported"
	FeedNotValid           = "not_valid"
	FeedDeleted            = "deleted"
	FeedPublishedInEdugain = "published_in_edugain"
)

const feedActor = "edugain-import"

// FeedResult reports what a feed import run did, entity ids per bucket.
type FeedResult struct {
	Total   int                 `json:"total"`
	Buckets map[string][]string `json:"buckets"`
}

func (r *FeedResult) add(bucket, entityID string) {
	r.Buckets[bucket] = append(r.Buckets[bucket], entityID)
}

// ImportFeed imports every service provider in the aggregate feed at url.
// Known entities are merged, unknown ones created, and entities previously
// imported from the feed but no longer present are deleted. A transport
// failure aborts the whole run; a single invalid entity only lands in the
// not_valid bucket.
func (s *Service) ImportFeed(ctx context.Context, url string) (*FeedResult, error) {
	if s.feeds == nil {
		return nil, errors.New("no feed source configured")
	}
	if s.metrics != nil {
		s.metrics.FeedImportsTotal.Inc()
	}

	entities, err := s.feeds.FetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Total: len(entities), Buckets: map[string][]string{}}
	present := map[string]bool{}

	for _, entity := range entities {
		if entity.Data == nil {
			s.log.WithFields(logrus.Fields{"entityid": entity.EntityID, "reason": entity.Reason}).Debug("feed entity not imported")
			result.add(FeedNotImported, entity.EntityID)
			continue
		}
		present[entity.EntityID] = true
		stampFeedOrigin(entity.Data, url)

		bucket, err := s.importFeedEntity(ctx, entity)
		if err != nil {
			return nil, err
		}
		result.add(bucket, entity.EntityID)
	}

	deleted, err := s.deleteVanishedImports(ctx, url, present)
	if err != nil {
		return nil, err
	}
	for _, entityID := range deleted {
		result.add(FeedDeleted, entityID)
	}

	if s.metrics != nil {
		for bucket, ids := range result.Buckets {
			s.metrics.FeedImportOutcomes.WithLabelValues(bucket).Add(float64(len(ids)))
		}
	}
	s.log.WithFields(logrus.Fields{"url": url, "total": result.Total}).Info("feed import finished")
	return result, nil
}

func stampFeedOrigin(data map[string]interface{}, url string) {
	data["metadataurl"] = url
	fields, ok := data["metaDataFields"].(map[string]interface{})
	if !ok {
		fields = map[string]interface{}{}
		data["metaDataFields"] = fields
	}
	fields["coin:imported_from_edugain"] = true
	fields["coin:interfed_source"] = "eduGAIN"
}

func (s *Service) importFeedEntity(ctx context.Context, entity importer.FeedEntity) (string, error) {
	matches, err := s.UniqueEntityID(ctx, model.ServiceProvider.String(), entity.EntityID)
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		record := model.NewMetaData(model.ServiceProvider.String(), entity.Data)
		if _, err := s.Create(ctx, record, feedActor); err != nil {
			if isRejectedEntity(err) {
				s.log.WithFields(logrus.Fields{"entityid": entity.EntityID}).WithError(err).Warn("feed entity rejected")
				return FeedNotValid, nil
			}
			return "", err
		}
		return FeedImported, nil
	}

	previous, err := s.store.FindByID(ctx, matches[0].ID, matches[0].Type)
	if err != nil {
		return "", err
	}
	if previous == nil {
		return "", &model.NotFoundError{ID: matches[0].ID, Type: matches[0].Type}
	}
	if published, _ := previous.MetaDataFields()["coin:publish_in_edugain"].(bool); published {
		return FeedPublishedInEdugain, nil
	}

	record := previous.Copy()
	record.Data["metadataurl"] = entity.Data["metadataurl"]
	fields := record.MetaDataFields()
	for key, value := range entity.Data["metaDataFields"].(map[string]interface{}) {
		fields[key] = value
	}

	record, err = s.hooks.PreUpdate(ctx, previous.Copy(), record)
	if err != nil {
		return "", err
	}
	record, err = s.validate(ctx, record)
	if err != nil {
		if isRejectedEntity(err) {
			s.log.WithFields(logrus.Fields{"entityid": entity.EntityID}).WithError(err).Warn("feed entity rejected")
			return FeedNotValid, nil
		}
		return "", err
	}

	if reflect.DeepEqual(previous.MetaDataFields(), record.MetaDataFields()) {
		return FeedNoChanges, nil
	}

	if err := s.commitRevision(ctx, previous, record, feedActor, "Updated from metadata feed"); err != nil {
		return "", err
	}
	return FeedMerged, nil
}

// deleteVanishedImports removes service providers that were imported from
// the feed earlier but are no longer part of it.
func (s *Service) deleteVanishedImports(ctx context.Context, url string, present map[string]bool) ([]string, error) {
	filter := map[string]interface{}{"metaDataFields.coin:imported_from_edugain": true}
	imported, err := s.store.FindByFilter(ctx, model.ServiceProvider.String(), filter, true, nil)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, record := range imported {
		if present[record.EntityID()] {
			continue
		}
		if err := s.Delete(ctx, record.Type, record.ID, feedActor, "No longer in metadata feed "+url); err != nil {
			return nil, err
		}
		deleted = append(deleted, record.EntityID())
	}
	return deleted, nil
}

func isRejectedEntity(err error) bool {
	var validation *model.ValidationError
	var policy *model.PolicyViolationError
	var duplicate *model.DuplicateEntityIDError
	return errors.As(err, &validation) || errors.As(err, &policy) || errors.As(err, &duplicate)
}
