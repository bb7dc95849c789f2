package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) subscribeHandler(c *echo.Context) error {
	var body struct {
		AgentID string `json:"agent_id"`
		Topic   string `json:"topic"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	sub, err := s.subscriptions.Subscribe(c.Request().Context(), body.AgentID, body.Topic)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) unsubscribeHandler(c *echo.Context) error {
	var body struct {
		AgentID string `json:"agent_id"`
		Topic   string `json:"topic"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	if err := s.subscriptions.Unsubscribe(c.Request().Context(), body.AgentID, body.Topic); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listSubscriptionsHandler(c *echo.Context) error {
	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "agent_id is required"})
	}
	subs, err := s.subscriptions.ListByAgent(c.Request().Context(), agentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, subs)
}
