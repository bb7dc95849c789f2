package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/ent/request"
	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) createRequestHandler(c *echo.Context) error {
	var req services.CreateRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	created, err := s.requests.CreateRequest(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	slog.Info("request created", "request_id", created.ID, "author", extractAuthor(c))
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) getRequestHandler(c *echo.Context) error {
	req, err := s.requests.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (s *Server) listRequestsHandler(c *echo.Context) error {
	filters := services.RequestFilters{
		SessionID: c.QueryParam("session_id"),
		Status:    c.QueryParam("status"),
	}
	if pid := c.QueryParam("project_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid project_id"})
		}
		filters.ProjectID = id
	}
	requests, err := s.requests.ListRequests(c.Request().Context(), filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, requests)
}

func (s *Server) updateRequestStatusHandler(c *echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	if err := s.requests.UpdateRequestStatus(c.Request().Context(), c.Param("id"), request.Status(body.Status)); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
