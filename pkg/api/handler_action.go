package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) createActionHandler(c *echo.Context) error {
	var req services.CreateActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	action, err := s.actions.CreateAction(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, action)
}

func (s *Server) getActionHandler(c *echo.Context) error {
	action, err := s.actions.GetAction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, action)
}

func (s *Server) listActionsBySubtaskHandler(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid subtask id"})
	}
	actions, err := s.actions.ListActionsBySubtask(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, actions)
}

func (s *Server) hourlyActionCountsHandler(c *echo.Context) error {
	hours := 24
	if h := c.QueryParam("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid hours"})
		}
		hours = parsed
	}
	counts, err := s.actions.HourlyActionCounts(c.Request().Context(), hours)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, counts)
}
