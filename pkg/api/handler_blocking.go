package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) blockHandler(c *echo.Context) error {
	var body struct {
		Blocker string `json:"blocker"`
		Blocked string `json:"blocked"`
		Reason  string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	blocking, err := s.blockings.Block(c.Request().Context(), body.Blocker, body.Blocked, body.Reason)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, blocking)
}

func (s *Server) unblockHandler(c *echo.Context) error {
	var body struct {
		Blocker string `json:"blocker"`
		Blocked string `json:"blocked"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	count, err := s.blockings.Unblock(c.Request().Context(), body.Blocker, body.Blocked)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": count})
}

func (s *Server) checkBlockedHandler(c *echo.Context) error {
	blocked, err := s.blockings.CheckIsBlocked(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"blocked": blocked})
}
