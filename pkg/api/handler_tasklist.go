package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) createTaskListHandler(c *echo.Context) error {
	var req services.CreateTaskListRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	taskList, err := s.taskLists.CreateTaskList(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, taskList)
}

func (s *Server) getTaskListHandler(c *echo.Context) error {
	taskList, err := s.taskLists.GetTaskList(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, taskList)
}

func (s *Server) listTaskListsByRequestHandler(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid request id"})
	}
	taskLists, err := s.taskLists.ListTaskListsByRequest(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, taskLists)
}
