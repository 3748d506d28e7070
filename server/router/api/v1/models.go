package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *APIV1Service) ListModels(c echo.Context) error {
	models, err := s.Engine.Backend().ListModels(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "backend unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"models": models})
}
