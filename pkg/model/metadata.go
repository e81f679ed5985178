package model

import (
	"strings"
	"time"
)

// Revision is the envelope describing where a record sits in its history
// chain. Number starts at 0 for a freshly created entity and increases by one
// on every committed change.
type Revision struct {
	Number          int       `json:"number"`
	Created         time.Time `json:"created"`
	ParentID        string    `json:"parentId,omitempty"`
	UpdatedBy       string    `json:"updatedBy"`
	Terminated      bool      `json:"terminated,omitempty"`
	TerminationNote string    `json:"terminationNote,omitempty"`
}

// MetaData is a single metadata document: either the current record of an
// entity or an immutable archived revision of it. Data is the free-form
// attribute tree validated by the schema registry.
type MetaData struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Version  int64                  `json:"version"`
	Revision *Revision              `json:"revision,omitempty"`
	Data     map[string]interface{} `json:"data"`
}

// NewMetaData returns an unsaved record of the given type.
func NewMetaData(entityType string, data map[string]interface{}) *MetaData {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &MetaData{Type: entityType, Data: data}
}

// EntityID returns the data["entityid"] value, or "".
func (m *MetaData) EntityID() string {
	s, _ := m.Data["entityid"].(string)
	return s
}

// MetaDataFields returns the nested protocol-specific attribute map, creating
// it when absent so hooks can write into it.
func (m *MetaData) MetaDataFields() map[string]interface{} {
	fields, ok := m.Data["metaDataFields"].(map[string]interface{})
	if !ok {
		fields = map[string]interface{}{}
		m.Data["metaDataFields"] = fields
	}
	return fields
}

// IsRevision reports whether the record is an archived snapshot.
func (m *MetaData) IsRevision() bool {
	return strings.HasSuffix(m.Type, RevisionSuffix)
}

// Initial stamps a freshly created record: revision 0, no parent.
func (m *MetaData) Initial(id, createdBy string, eid int64) {
	m.ID = id
	m.Data["eid"] = eid
	m.Revision = &Revision{Number: 0, Created: time.Now().UTC(), UpdatedBy: createdBy}
}

// ToRevision turns the record into an archived snapshot of itself: the type
// gains the revision suffix, the old id becomes the parent pointer and the
// record gets a fresh id of its own.
func (m *MetaData) ToRevision(newID string) {
	m.Type = m.Type + RevisionSuffix
	if m.Revision == nil {
		m.Revision = &Revision{}
	}
	m.Revision.ParentID = m.ID
	m.ID = newID
}

// PromoteToLatest advances the revision number after a change was applied on
// top of the previous current record.
func (m *MetaData) PromoteToLatest(updatedBy, revisionNote string) {
	number := 0
	if m.Revision != nil {
		number = m.Revision.Number + 1
	}
	m.Revision = &Revision{Number: number, Created: time.Now().UTC(), UpdatedBy: updatedBy}
	if revisionNote != "" {
		m.Data["revisionnote"] = revisionNote
	}
}

// Terminate turns an already archived record into the terminal marker of a
// deleted entity.
func (m *MetaData) Terminate(newID, note, updatedBy string) {
	// The terminated marker points at the archive that was just written, so
	// the full chain stays walkable from the marker backward.
	parentID := m.ID
	number := 0
	if m.Revision != nil {
		number = m.Revision.Number + 1
	}
	m.ID = newID
	m.Revision = &Revision{
		Number:          number,
		Created:         time.Now().UTC(),
		ParentID:        parentID,
		UpdatedBy:       updatedBy,
		Terminated:      true,
		TerminationNote: note,
	}
}

// DeTerminate clears the termination marker prior to re-promoting an archive.
func (m *MetaData) DeTerminate(newParentID string) {
	if m.Revision == nil {
		m.Revision = &Revision{}
	}
	m.Revision.Terminated = false
	m.Revision.TerminationNote = ""
	m.Revision.ParentID = newParentID
}

// RestoreToLatest re-promotes an archived snapshot to the current record of
// parentType under the given id and version.
func (m *MetaData) RestoreToLatest(id string, version int64, updatedBy string, number int, parentType string) {
	m.ID = id
	m.Version = version
	m.Type = parentType
	m.Revision = &Revision{Number: number + 1, Created: time.Now().UTC(), UpdatedBy: updatedBy}
}

// Merge applies the dotted-path updates of a MetaDataUpdate onto the
// attribute tree. Intermediate maps are created as needed; a nil value
// removes the leaf key.
func (m *MetaData) Merge(update *MetaDataUpdate) {
	for path, value := range update.PathUpdates {
		applyPath(m.Data, strings.Split(path, "."), value)
	}
}

func applyPath(node map[string]interface{}, parts []string, value interface{}) {
	if len(parts) == 1 {
		if value == nil {
			delete(node, parts[0])
		} else {
			node[parts[0]] = value
		}
		return
	}
	child, ok := node[parts[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		node[parts[0]] = child
	}
	applyPath(child, parts[1:], value)
}

// Copy returns a deep copy of the record; hooks receive copies so the stored
// previous state cannot be mutated accidentally.
func (m *MetaData) Copy() *MetaData {
	clone := *m
	if m.Revision != nil {
		rev := *m.Revision
		clone.Revision = &rev
	}
	clone.Data = deepCopyMap(m.Data)
	return &clone
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
