package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) dashboardKPIsHandler(c *echo.Context) error {
	kpis, err := s.dashboard.GetKPIs(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, kpis)
}
