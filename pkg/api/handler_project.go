package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) createProjectHandler(c *echo.Context) error {
	var req services.PostProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	project, err := s.projects.PostProject(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	slog.Info("project created", "project_id", project.ID, "path", project.Path, "author", extractAuthor(c))
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) listProjectsHandler(c *echo.Context) error {
	if path := c.QueryParam("by-path"); path != "" {
		project, err := s.projects.GetProjectByPath(c.Request().Context(), path)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, project)
	}
	projects, err := s.projects.ListProjects(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *Server) getProjectHandler(c *echo.Context) error {
	project, err := s.projects.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, project)
}
