package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) createWaveHandler(c *echo.Context) error {
	var body struct {
		WaveNumber int `json:"wave_number"`
		Total      int `json:"total,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	sessionID := c.Param("session")
	wave, err := s.waves.GetOrCreateWave(c.Request().Context(), sessionID, body.WaveNumber)
	if err != nil {
		return mapServiceError(err)
	}
	if body.Total > 0 {
		if err := s.waves.SetWaveTotal(c.Request().Context(), sessionID, body.WaveNumber, body.Total); err != nil {
			return mapServiceError(err)
		}
	}
	return c.JSON(http.StatusCreated, wave)
}

func (s *Server) startWaveHandler(c *echo.Context) error {
	var body struct {
		WaveNumber int `json:"wave_number"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
	}
	wave, err := s.waves.StartWave(c.Request().Context(), c.Param("session"), body.WaveNumber)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, wave)
}

func (s *Server) transitionWaveHandler(c *echo.Context) error {
	wave, err := s.waves.TransitionToNextWave(c.Request().Context(), c.Param("session"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, wave)
}

func (s *Server) currentWaveHandler(c *echo.Context) error {
	wave, err := s.waves.GetCurrentWave(c.Request().Context(), c.Param("session"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, wave)
}

func (s *Server) waveHistoryHandler(c *echo.Context) error {
	history, err := s.waves.GetWaveHistory(c.Request().Context(), c.Param("session"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, history)
}
