package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"
)

func (s *Server) getHierarchyHandler(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("project"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid project id"})
	}
	tree, err := s.hierarchy.GetHierarchy(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, tree)
}
