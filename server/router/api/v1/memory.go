package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultMessageLimit = 10
	maxMessageLimit     = 100
)

// MessageView is the wire form of one conversation turn.
type MessageView struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsUser    bool   `json:"isUser"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// FactView is the wire form of one remembered fact.
type FactView struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

func (s *APIV1Service) ListMessages(c echo.Context) error {
	limit := defaultMessageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxMessageLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
		}
		limit = parsed
	}

	messages := s.Engine.Memory().RecentMessages(c.Request().Context(), limit)
	views := make([]*MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, &MessageView{
			ID:        strconv.FormatInt(m.ID, 10),
			Content:   m.Content,
			IsUser:    m.IsUser,
			Timestamp: m.Timestamp,
			Status:    "sent",
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (s *APIV1Service) ListFacts(c echo.Context) error {
	subject := c.QueryParam("subject")
	if subject == "" {
		subject = "user"
	}

	facts := s.Engine.Memory().FactsAbout(c.Request().Context(), subject)
	views := make([]*FactView, 0, len(facts))
	for _, f := range facts {
		view := &FactView{
			Subject:    f.Subject,
			Predicate:  f.Predicate,
			Object:     f.Object,
			Confidence: f.Confidence,
			Timestamp:  f.Timestamp,
		}
		if f.Source != nil {
			view.Source = *f.Source
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, echo.Map{"facts": views})
}

func (s *APIV1Service) MemoryStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Engine.Stats(c.Request().Context()))
}
