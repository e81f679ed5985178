package hooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/storage"
)

// reservedPrefixes are identifier namespaces owned by the hub itself;
// participant entities may not register under them.
var reservedPrefixes = []string{
	"urn:federation:internal",
	"internal:",
}

// EntityIDConstraintsHook enforces identifier format rules and re-checks
// uniqueness within the type family when an update changes the entityid.
// The create-time duplicate check in the engine only guards inserts.
type EntityIDConstraintsHook struct {
	NoopHook
	store storage.Store
}

// NewEntityIDConstraintsHook creates the constraints hook.
func NewEntityIDConstraintsHook(store storage.Store) *EntityIDConstraintsHook {
	return &EntityIDConstraintsHook{store: store}
}

func (h *EntityIDConstraintsHook) PreCreate(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	if err := checkFormat(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (h *EntityIDConstraintsHook) PreUpdate(ctx context.Context, previous, updated *model.MetaData) (*model.MetaData, error) {
	if err := checkFormat(updated); err != nil {
		return nil, err
	}
	if previous != nil && previous.EntityID() != updated.EntityID() {
		if err := h.checkUnique(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func checkFormat(record *model.MetaData) error {
	entityID := record.EntityID()
	if entityID == "" {
		return &model.ValidationError{Type: record.Type, Messages: []string{"entityid: required field is missing"}}
	}
	if strings.ContainsAny(entityID, " \t\n") {
		return &model.ValidationError{Type: record.Type, Messages: []string{fmt.Sprintf("entityid: %q must not contain whitespace", entityID)}}
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(entityID, prefix) {
			return &model.PolicyViolationError{Reason: fmt.Sprintf("entityid %q uses reserved prefix %q", entityID, prefix)}
		}
	}
	return nil
}

func (h *EntityIDConstraintsHook) checkUnique(ctx context.Context, record *model.MetaData) error {
	entityType, err := model.ParseEntityType(record.Type)
	if err != nil {
		return nil
	}
	filter := map[string]interface{}{"entityid": record.EntityID()}
	for _, familyType := range entityType.Family() {
		matches, err := h.store.FindByFilter(ctx, familyType.String(), filter, true, []string{"entityid"})
		if err != nil {
			return err
		}
		for _, match := range matches {
			if match.ID != record.ID {
				return &model.DuplicateEntityIDError{EntityID: record.EntityID()}
			}
		}
	}
	return nil
}
