package schema

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/manage/pkg/model"
)

func watchLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const relaxedSP = `
type: saml20_sp
fields:
  entityid:
    type: string
    required: true
metaDataFields:
  "name:en":
    type: string
`

const stricterSP = `
type: saml20_sp
fields:
  entityid:
    type: string
    required: true
  homeInstitution:
    type: string
    required: true
metaDataFields:
  "name:en":
    type: string
`

func TestWatch(t *testing.T) {
	t.Run("blocks until the context is cancelled", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "saml20_sp.yaml"), []byte(relaxedSP), 0o644))

		registry := NewRegistry()
		require.NoError(t, registry.LoadDir(dir))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- registry.Watch(ctx, watchLogger()) }()

		select {
		case err := <-done:
			t.Fatalf("watch returned before cancellation: %v", err)
		case <-time.After(200 * time.Millisecond):
		}

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not return after cancellation")
		}
	})

	t.Run("reloads a changed schema file", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "saml20_sp.yaml")
		require.NoError(t, os.WriteFile(file, []byte(relaxedSP), 0o644))

		registry := NewRegistry()
		require.NoError(t, registry.LoadDir(dir))
		minimal := map[string]interface{}{"entityid": "https://sp.example.org"}
		require.NoError(t, registry.Validate(minimal, "saml20_sp"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- registry.Watch(ctx, watchLogger()) }()

		// Give the watcher a moment to register before the write lands.
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(file, []byte(stricterSP), 0o644))

		assert.Eventually(t, func() bool {
			err := registry.Validate(minimal, "saml20_sp")
			var validation *model.ValidationError
			return errors.As(err, &validation)
		}, 5*time.Second, 50*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("registry without a loaded directory returns at once", func(t *testing.T) {
		registry := NewRegistry()
		assert.NoError(t, registry.Watch(context.Background(), watchLogger()))
	})
}
