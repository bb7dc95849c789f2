package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"
)

func (s *Server) projectIDParam(c *echo.Context) (uuid.UUID, error) {
	pid := c.QueryParam("project_id")
	if pid == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "project_id is required"})
	}
	id, err := uuid.Parse(pid)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid project_id"})
	}
	return id, nil
}

func (s *Server) getContextHandler(c *echo.Context) error {
	projectID, err := s.projectIDParam(c)
	if err != nil {
		return err
	}
	ctx, err := s.contexts.GetContext(c.Request().Context(), projectID, c.Param("agent"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, ctx)
}

func (s *Server) generateContextHandler(c *echo.Context) error {
	var body struct {
		ProjectID uuid.UUID `json:"project_id"`
		AgentID   string    `json:"agent_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	generated, err := s.contexts.GenerateContext(c.Request().Context(), body.ProjectID, body.AgentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, generated)
}

func (s *Server) saveCompactSnapshotHandler(c *echo.Context) error {
	var body struct {
		ProjectID uuid.UUID      `json:"project_id"`
		SessionID string         `json:"session_id"`
		Snapshot  map[string]any `json:"snapshot"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	saved, err := s.contexts.SaveCompactSnapshot(c.Request().Context(), body.ProjectID, body.SessionID, body.Snapshot)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) restoreCompactSnapshotHandler(c *echo.Context) error {
	var body struct {
		ProjectID uuid.UUID `json:"project_id"`
		SessionID string    `json:"session_id"`
		AgentID   string    `json:"agent_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	restored, err := s.contexts.RestoreCompactSnapshot(c.Request().Context(), body.ProjectID, body.SessionID, body.AgentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, restored)
}

func (s *Server) compactStatusHandler(c *echo.Context) error {
	projectID, err := s.projectIDParam(c)
	if err != nil {
		return err
	}
	status, err := s.contexts.GetCompactStatus(c.Request().Context(), projectID, c.Param("session"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) compactSnapshotHandler(c *echo.Context) error {
	projectID, err := s.projectIDParam(c)
	if err != nil {
		return err
	}
	snap, err := s.contexts.GetCompactSnapshot(c.Request().Context(), projectID, c.Param("session"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, snap)
}
