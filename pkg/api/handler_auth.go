package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) issueTokenHandler(c *echo.Context) error {
	var body struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	if body.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "validation_error", Message: "agent_id is required"})
	}
	token, err := s.issuer.Issue(body.AgentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
