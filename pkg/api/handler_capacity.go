package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) recordTokenUsageHandler(c *echo.Context) error {
	var body struct {
		ActionID    string `json:"action_id"`
		AgentID     string `json:"agent_id"`
		Tokens      int    `json:"tokens"`
		MaxCapacity int    `json:"max_capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	usage, err := s.capacity.RecordTokenUsage(c.Request().Context(), body.ActionID, body.AgentID, body.Tokens, body.MaxCapacity)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, usage)
}

func (s *Server) getCapacityHandler(c *echo.Context) error {
	usage, err := s.capacity.GetCapacity(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, usage)
}

func (s *Server) resetCapacityHandler(c *echo.Context) error {
	if err := s.capacity.ResetCapacity(c.Request().Context(), c.Param("agent_id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
