package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) cleanupStatsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cleanup.Stats())
}
