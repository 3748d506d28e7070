package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UpdatePersonalityRequest carries trait overrides. Values are clamped to
// [0, 1]; unknown trait names are ignored.
type UpdatePersonalityRequest struct {
	Traits map[string]float64 `json:"traits"`
}

// UpdateEmotionRequest carries emotion axis overrides.
type UpdateEmotionRequest struct {
	Values map[string]float64 `json:"values"`
}

func (s *APIV1Service) GetPersonality(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"personality": s.Engine.Persona().Personality()})
}

func (s *APIV1Service) UpdatePersonality(c echo.Context) error {
	req := &UpdatePersonalityRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.Traits) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "traits must not be empty")
	}

	updated, err := s.Engine.Persona().UpdatePersonality(req.Traits)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist personality").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"personality": updated})
}

func (s *APIV1Service) GetEmotion(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"emotion": s.Engine.Persona().Emotion()})
}

func (s *APIV1Service) UpdateEmotion(c echo.Context) error {
	req := &UpdateEmotionRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.Values) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "values must not be empty")
	}

	updated, err := s.Engine.Persona().UpdateEmotion(req.Values)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist emotion").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"emotion": updated})
}

func (s *APIV1Service) SystemPrompt(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"system_prompt": s.Engine.SystemPrompt()})
}
