package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/dcm/pkg/routing"
)

func (s *Server) routingSuggestHandler(c *echo.Context) error {
	keywords := routing.SplitKeywords(c.QueryParam("keywords"))
	filters := routing.SuggestFilters{Limit: 10}
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if min := c.QueryParam("min_score"); min != "" {
		if f, err := strconv.ParseFloat(min, 64); err == nil {
			filters.MinScore = f
		}
	}
	suggestions, err := s.routing.Suggest(c.Request().Context(), keywords, filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, suggestions)
}

func (s *Server) routingStatsHandler(c *echo.Context) error {
	stats, err := s.routing.Stats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) routingFeedbackHandler(c *echo.Context) error {
	var body struct {
		Keywords       []string `json:"keywords"`
		SelectedTool   string   `json:"selected_tool"`
		SuggestedTools []string `json:"suggested_tools"`
		Accepted       bool     `json:"accepted"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	req := routing.FeedbackRequest{
		Keywords:       body.Keywords,
		SelectedTool:   body.SelectedTool,
		SuggestedTools: body.SuggestedTools,
		Accepted:       body.Accepted,
	}
	if err := s.routing.Feedback(c.Request().Context(), req); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
