package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/manage/pkg/model"
)

func TestMerge(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	saved := mustCreate(t, service, newSP("https://sp.example.org"))

	t.Run("changed metadata commits a revision", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:   saved.ID,
			Type: saved.Type,
			PathUpdates: map[string]interface{}{
				"metaDataFields.name:en": "Merged name",
				"metaDataFields.name:nl": "Samengevoegde naam",
			},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "", false)
		require.NoError(t, err)
		require.NotNil(t, merged)

		assert.Equal(t, 1, merged.Revision.Number)
		assert.Equal(t, "Merged name", merged.MetaDataFields()["name:en"])
		assert.Equal(t, "Samengevoegde naam", merged.MetaDataFields()["name:nl"])

		revisions, err := service.Revisions(ctx, saved.Type, saved.ID)
		require.NoError(t, err)
		assert.Len(t, revisions, 1)
	})

	t.Run("no metadata change returns nil", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:   saved.ID,
			Type: saved.Type,
			PathUpdates: map[string]interface{}{
				"metaDataFields.name:en": "Merged name",
			},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "", false)
		require.NoError(t, err)
		assert.Nil(t, merged)
	})

	t.Run("top-level edits alone do not commit", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:          saved.ID,
			Type:        saved.Type,
			PathUpdates: map[string]interface{}{"notes": "internal note"},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "", false)
		require.NoError(t, err)
		assert.Nil(t, merged)
	})

	t.Run("forceNewRevision commits regardless", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:          saved.ID,
			Type:        saved.Type,
			PathUpdates: map[string]interface{}{"notes": "internal note"},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "", true)
		require.NoError(t, err)
		require.NotNil(t, merged)
		assert.Equal(t, 2, merged.Revision.Number)
		assert.Equal(t, "internal note", merged.Data["notes"])
	})

	t.Run("external reference data lands at the top level", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:                    saved.ID,
			Type:                  saved.Type,
			ExternalReferenceData: map[string]interface{}{"metadataurl": "https://sp.example.org/metadata"},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "", true)
		require.NoError(t, err)
		require.NotNil(t, merged)
		assert.Equal(t, "https://sp.example.org/metadata", merged.Data["metadataurl"])
	})

	t.Run("explicit note wins over the patched revisionnote", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:          saved.ID,
			Type:        saved.Type,
			PathUpdates: map[string]interface{}{"metaDataFields.name:en": "Renamed again"},
		}

		merged, err := service.Merge(ctx, update, "jdoe", "Internal API merge", false)
		require.NoError(t, err)
		require.NotNil(t, merged)
		assert.Equal(t, "Internal API merge", merged.Data["revisionnote"])
	})

	t.Run("unknown record is not found", func(t *testing.T) {
		update := &model.MetaDataUpdate{ID: "missing", Type: saved.Type}
		_, err := service.Merge(ctx, update, "jdoe", "", false)
		var notFound *model.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("invalid merge result is rejected", func(t *testing.T) {
		update := &model.MetaDataUpdate{
			ID:          saved.ID,
			Type:        saved.Type,
			PathUpdates: map[string]interface{}{"metaDataFields.made:up": "value"},
		}

		_, err := service.Merge(ctx, update, "jdoe", "", false)
		var validation *model.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}
