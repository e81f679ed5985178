package model

// MetaDataUpdate is a partial merge patch for a current record: dotted
// attribute paths mapped to replacement values, plus an optional block of
// external reference data that is merged into the top level wholesale.
type MetaDataUpdate struct {
	ID                    string                 `json:"id"`
	Type                  string                 `json:"type"`
	PathUpdates           map[string]interface{} `json:"pathUpdates"`
	ExternalReferenceData map[string]interface{} `json:"externalReferenceData,omitempty"`
}

// RevisionRestore identifies an archived snapshot to re-promote and the
// current-kind type it should be promoted under.
type RevisionRestore struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	ParentID   string `json:"parentId"`
	ParentType string `json:"parentType"`
}
