package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/dcm/ent/agentmessage"
	"github.com/codeready-toolchain/dcm/pkg/services"
)

func (s *Server) postMessageHandler(c *echo.Context) error {
	var req services.PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	msg, err := s.messages.PostMessage(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) getMessagesHandler(c *echo.Context) error {
	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "agent_id is required"})
	}
	filters := services.MessageFilters{
		Topic:             agentmessage.Topic(c.QueryParam("topic")),
		IncludeBroadcasts: c.QueryParam("include_broadcasts") != "false",
	}
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filters.Limit = n
		}
	}
	messages, err := s.messages.GetMessages(c.Request().Context(), agentID, filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) markMessageReadHandler(c *echo.Context) error {
	var body struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	if err := s.messages.MarkRead(c.Request().Context(), body.AgentID, c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
