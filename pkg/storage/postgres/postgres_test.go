package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/manage/pkg/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

const selectByID = "SELECT version, document FROM metadata_documents WHERE id = $1 AND type = $2"

func TestFindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes the stored document", func(t *testing.T) {
		store, mock := newMockStore(t)
		document := `{"revision":{"number":2,"parentId":"","updatedBy":"jdoe"},"data":{"entityid":"https://sp.example.org"}}`
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
			WithArgs("id-1", "saml20_sp").
			WillReturnRows(sqlmock.NewRows([]string{"version", "document"}).AddRow(int64(3), []byte(document)))

		record, err := store.FindByID(ctx, "id-1", "saml20_sp")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "id-1", record.ID)
		assert.Equal(t, int64(3), record.Version)
		assert.Equal(t, 2, record.Revision.Number)
		assert.Equal(t, "https://sp.example.org", record.EntityID())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent rows return nil, nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
			WithArgs("missing", "saml20_sp").
			WillReturnRows(sqlmock.NewRows([]string{"version", "document"}))

		record, err := store.FindByID(ctx, "missing", "saml20_sp")
		require.NoError(t, err)
		assert.Nil(t, record)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSave(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metadata_documents (id, type, version, document) VALUES ($1, $2, $3, $4)")).
		WithArgs("id-1", "saml20_sp", int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := model.NewMetaData("saml20_sp", map[string]interface{}{"entityid": "https://sp.example.org"})
	record.ID = "id-1"
	require.NoError(t, store.Save(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	updateQuery := regexp.QuoteMeta("UPDATE metadata_documents SET version = version + 1, document = $1 WHERE id = $2 AND type = $3 AND version = $4")

	record := func() *model.MetaData {
		r := model.NewMetaData("saml20_sp", map[string]interface{}{"entityid": "https://sp.example.org"})
		r.ID = "id-1"
		r.Version = 4
		return r
	}

	t.Run("matching version increments", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(updateQuery).
			WithArgs(sqlmock.AnyArg(), "id-1", "saml20_sp", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		r := record()
		require.NoError(t, store.Update(ctx, r))
		assert.Equal(t, int64(5), r.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(updateQuery).
			WithArgs(sqlmock.AnyArg(), "id-1", "saml20_sp", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
			WithArgs("id-1", "saml20_sp").
			WillReturnRows(sqlmock.NewRows([]string{"version", "document"}).AddRow(int64(5), []byte(`{"data":{}}`)))

		err := store.Update(ctx, record())
		var conflict *model.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("vanished record is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(updateQuery).
			WithArgs(sqlmock.AnyArg(), "id-1", "saml20_sp", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(selectByID)).
			WithArgs("id-1", "saml20_sp").
			WillReturnRows(sqlmock.NewRows([]string{"version", "document"}))

		err := store.Update(ctx, record())
		var notFound *model.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	deleteQuery := regexp.QuoteMeta("DELETE FROM metadata_documents WHERE id = $1 AND type = $2")

	record := model.NewMetaData("saml20_sp", nil)
	record.ID = "id-1"

	t.Run("deletes the row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(deleteQuery).WithArgs("id-1", "saml20_sp").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Remove(ctx, record))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(deleteQuery).WithArgs("id-1", "saml20_sp").WillReturnResult(sqlmock.NewResult(0, 0))

		var notFound *model.NotFoundError
		assert.ErrorAs(t, store.Remove(ctx, record), &notFound)
	})
}

func TestNextCounterValue(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('metadata_eid_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

	value, err := store.NextCounterValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("builds jsonpath conditions in sorted key order", func(t *testing.T) {
		store, mock := newMockStore(t)
		query := "SELECT id, version, document FROM metadata_documents WHERE type = $1 AND (" +
			"jsonb_path_exists(document->'data', $2::jsonpath) AND jsonb_path_exists(document->'data', $3::jsonpath)) ORDER BY id"
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("saml20_sp", `$."allowedEntities"."name" ? (@ == "https://idp.example.org")`, `$."entityid" ? (@ == "https://sp.example.org")`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "version", "document"}).
				AddRow("id-1", int64(0), []byte(`{"data":{"entityid":"https://sp.example.org","state":"prodaccepted"}}`)))

		filter := map[string]interface{}{
			"entityid":             "https://sp.example.org",
			"allowedEntities.name": "https://idp.example.org",
		}
		records, err := store.FindByFilter(ctx, "saml20_sp", filter, true, nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "id-1", records[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("matchAll false joins with OR", func(t *testing.T) {
		store, mock := newMockStore(t)
		query := "SELECT id, version, document FROM metadata_documents WHERE type = $1 AND (" +
			"jsonb_path_exists(document->'data', $2::jsonpath) OR jsonb_path_exists(document->'data', $3::jsonpath)) ORDER BY id"
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("saml20_sp", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "version", "document"}))

		filter := map[string]interface{}{"entityid": "a", "state": "prodaccepted"}
		_, err := store.FindByFilter(ctx, "saml20_sp", filter, false, nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("projection keeps entityid plus requested", func(t *testing.T) {
		store, mock := newMockStore(t)
		query := "SELECT id, version, document FROM metadata_documents WHERE type = $1 ORDER BY id"
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("saml20_sp").
			WillReturnRows(sqlmock.NewRows([]string{"id", "version", "document"}).
				AddRow("id-1", int64(0), []byte(`{"data":{"entityid":"https://sp.example.org","state":"prodaccepted","metaDataFields":{}}}`)))

		records, err := store.FindByFilter(ctx, "saml20_sp", nil, true, []string{"state"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Contains(t, records[0].Data, "entityid")
		assert.Contains(t, records[0].Data, "state")
		assert.NotContains(t, records[0].Data, "metaDataFields")
	})

	t.Run("unsupported filter values fail", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.FindByFilter(ctx, "saml20_sp", map[string]interface{}{"entityid": []string{"x"}}, true, nil)
		assert.Error(t, err)
	})
}

func TestListRevisions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, version, document FROM metadata_documents").
		WithArgs("saml20_sp_revision", "id-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "document"}).
			AddRow("rev-1", int64(0), []byte(`{"revision":{"number":0,"parentId":"id-1"},"data":{}}`)).
			AddRow("rev-2", int64(0), []byte(`{"revision":{"number":1,"parentId":"id-1"},"data":{}}`)))

	revisions, err := store.ListRevisions(context.Background(), "saml20_sp_revision", "id-1")
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, "saml20_sp_revision", revisions[0].Type)
	assert.Equal(t, 0, revisions[0].Revision.Number)
	assert.Equal(t, 1, revisions[1].Revision.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}
