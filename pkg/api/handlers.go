package api

import (
	"io"
	"net/http"

	"github.com/openfed/manage/pkg/export"
	"github.com/openfed/manage/pkg/httputil"
	"github.com/openfed/manage/pkg/importer"
	"github.com/openfed/manage/pkg/model"
)

// getMetaData handles GET /metadata/{type}/{id}
func (s *Server) getMetaData(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	record, err := s.engine.Get(r.Context(), vars["type"], vars["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// createMetaData handles POST /metadata
func (s *Server) createMetaData(w http.ResponseWriter, r *http.Request) {
	var record model.MetaData
	if !httputil.ParseJSONOrError(w, r, &record) {
		return
	}
	if _, err := model.ParseEntityType(record.Type); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	saved, err := s.engine.Create(r.Context(), &record, actor(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteCreated(w, saved)
}

// updateMetaData handles PUT /metadata
func (s *Server) updateMetaData(w http.ResponseWriter, r *http.Request) {
	var record model.MetaData
	if !httputil.ParseJSONOrError(w, r, &record) {
		return
	}
	if record.ID == "" {
		httputil.WriteBadRequest(w, "id is required")
		return
	}

	saved, err := s.engine.Update(r.Context(), &record, actor(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, saved)
}

// deleteMetaData handles DELETE /metadata/{type}/{id}
func (s *Server) deleteMetaData(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	note := httputil.ParseQueryString(r, "revisionNote", "")

	if err := s.engine.Delete(r.Context(), vars["type"], vars["id"], actor(r), note); err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// mergeMetaData handles PUT /merge. The response body is null when the
// update changed nothing and no revision was committed.
func (s *Server) mergeMetaData(w http.ResponseWriter, r *http.Request) {
	var update model.MetaDataUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}
	force, err := httputil.ParseQueryBool(r, "forceNewRevision", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	note := httputil.ParseQueryString(r, "revisionNote", "Internal API merge")
	record, err := s.engine.Merge(r.Context(), &update, actor(r), note, force)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// validateMetaData handles POST /validate
func (s *Server) validateMetaData(w http.ResponseWriter, r *http.Request) {
	var record model.MetaData
	if !httputil.ParseJSONOrError(w, r, &record) {
		return
	}
	if err := s.engine.Validate(r.Context(), &record); err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"valid": true})
}

// getTemplate handles GET /template/{type}
func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	record, err := s.engine.Template(vars["type"])
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, record)
}

// listRevisions handles GET /revisions/{type}/{parentId}
func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	revisions, err := s.engine.Revisions(r.Context(), vars["type"], vars["parentId"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, revisions)
}

// restoreDeleted handles PUT /restoreDeleted
func (s *Server) restoreDeleted(w http.ResponseWriter, r *http.Request) {
	var restore model.RevisionRestore
	if !httputil.ParseJSONOrError(w, r, &restore) {
		return
	}
	record, err := s.engine.RestoreDeleted(r.Context(), &restore, actor(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// restoreRevision handles PUT /restoreRevision
func (s *Server) restoreRevision(w http.ResponseWriter, r *http.Request) {
	var restore model.RevisionRestore
	if !httputil.ParseJSONOrError(w, r, &restore) {
		return
	}
	record, err := s.engine.RestoreRevision(r.Context(), &restore, actor(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// uniqueEntityID handles GET /uniqueEntityId/{type}?entityId=...
func (s *Server) uniqueEntityID(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	entityID := httputil.ParseQueryString(r, "entityId", "")
	if entityID == "" {
		httputil.WriteBadRequest(w, "entityId query parameter is required")
		return
	}

	matches, err := s.engine.UniqueEntityID(r.Context(), vars["type"], entityID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"entityid": entityID,
		"taken":    len(matches) > 0,
		"matches":  matches,
	})
}

type searchRequest struct {
	Filter              map[string]interface{} `json:"filter"`
	MatchAll            *bool                  `json:"matchAll,omitempty"`
	RequestedAttributes []string               `json:"requestedAttributes,omitempty"`
}

// search handles POST /search/{type}
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	var req searchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	matchAll := true
	if req.MatchAll != nil {
		matchAll = *req.MatchAll
	}

	records, err := s.engine.Search(r.Context(), vars["type"], req.Filter, matchAll, req.RequestedAttributes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, records)
}

// rawSearch handles POST /rawSearch/{type}; the body is the raw store query.
func (s *Server) rawSearch(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	query, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	records, err := s.engine.RawSearch(r.Context(), vars["type"], string(query))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, records)
}

// exportMetaData handles GET /export/{type}/{id}, producing the flat legacy
// representation of a record.
func (s *Server) exportMetaData(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	record, err := s.engine.Get(r.Context(), vars["type"], vars["id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	exported, err := export.Export(record)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, exported)
}

type importXMLRequest struct {
	XML  string `json:"xml"`
	Type string `json:"type"`
}

// importXML handles POST /import/xml
func (s *Server) importXML(w http.ResponseWriter, r *http.Request) {
	var req importXMLRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	entityType, err := model.ParseEntityType(req.Type)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	data, err := importer.ImportXML([]byte(req.XML), entityType)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, data)
}

type importURLRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// importURL handles POST /import/url
func (s *Server) importURL(w http.ResponseWriter, r *http.Request) {
	var req importURLRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	entityType, err := model.ParseEntityType(req.Type)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	data, err := s.importer.ImportURL(r.Context(), req.URL, entityType)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, data)
}

type importFeedRequest struct {
	URL string `json:"url"`
}

// importFeed handles POST /import/feed
func (s *Server) importFeed(w http.ResponseWriter, r *http.Request) {
	var req importFeedRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.URL == "" {
		httputil.WriteBadRequest(w, "url is required")
		return
	}

	result, err := s.engine.ImportFeed(r.Context(), req.URL)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

type connectRequest struct {
	IdpEntityID string `json:"idpId"`
	SpEntityID  string `json:"spId"`
	SpType      string `json:"type"`
}

// connectWithoutInteraction handles PUT /connectWithoutInteraction
func (s *Server) connectWithoutInteraction(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SpType == "" {
		req.SpType = model.ServiceProvider.String()
	}

	result, err := s.engine.ConnectWithoutInteraction(r.Context(), req.IdpEntityID, req.SpEntityID, req.SpType, actor(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
