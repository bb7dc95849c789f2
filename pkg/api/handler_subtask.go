package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/ent/subtask"
	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) createSubtaskHandler(c *echo.Context) error {
	var req services.CreateSubtaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	created, err := s.subtasks.CreateSubtask(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) getSubtaskHandler(c *echo.Context) error {
	st, err := s.subtasks.GetSubtask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) listSubtasksHandler(c *echo.Context) error {
	filters := services.SubtaskFilters{
		Status:    c.QueryParam("status"),
		AgentType: c.QueryParam("agent_type"),
		ParentID:  c.QueryParam("parent_agent_id"),
	}
	if tl := c.QueryParam("task_list_id"); tl != "" {
		id, err := uuid.Parse(tl)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid task_list_id"})
		}
		filters.TaskListID = id
	}
	subtasks, err := s.subtasks.ListSubtasks(c.Request().Context(), filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, subtasks)
}

func (s *Server) patchSubtaskStatusHandler(c *echo.Context) error {
	var body struct {
		Status string         `json:"status"`
		Result map[string]any `json:"result,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	st, err := s.subtasks.PatchSubtaskStatus(c.Request().Context(), c.Param("id"), subtask.Status(body.Status), body.Result)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) deleteSubtaskHandler(c *echo.Context) error {
	if err := s.subtasks.DeleteSubtask(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) closeSessionSubtasksHandler(c *echo.Context) error {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	count, err := s.subtasks.CloseSessionSubtasks(c.Request().Context(), body.SessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"closed": count})
}
