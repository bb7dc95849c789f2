package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) createSessionHandler(c *echo.Context) error {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	session, err := s.sessions.CreateSession(c.Request().Context(), body.ID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) getSessionHandler(c *echo.Context) error {
	session, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) listActiveSessionsHandler(c *echo.Context) error {
	sessions, err := s.sessions.ListActiveSessions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) endSessionHandler(c *echo.Context) error {
	if err := s.sessions.EndSession(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sessionStatsHandler(c *echo.Context) error {
	stats, err := s.sessions.GetSessionStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
