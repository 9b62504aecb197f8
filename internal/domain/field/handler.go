package field

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecircle/carecircle/internal/domain/circle"
	"github.com/carecircle/carecircle/internal/domain/policy"
	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/carecircle/carecircle/internal/platform/privacy"
)

type Handler struct {
	svc      *Service
	resolver *policy.Resolver
	circles  *circle.Service
}

func NewHandler(svc *Service, resolver *policy.Resolver, circles *circle.Service) *Handler {
	return &Handler{svc: svc, resolver: resolver, circles: circles}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/circles/:id/fields/seal", h.Seal)
	api.POST("/circles/:id/fields/reveal", h.Reveal)
}

// gate resolves the sensitive-view capability for the acting member. Both
// directions are gated: sealing writes a sensitive value, revealing reads
// one.
func (h *Handler) gate(c echo.Context, patientID uuid.UUID) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	acting, err := h.circles.GetMember(c.Request().Context(), patientID, userID)
	if errors.Is(err, circle.ErrNotFound) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this circle")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "membership lookup failed")
	}

	switch h.resolver.Resolve(c.Request().Context(), patientID, acting, SensitiveFeatureKey) {
	case policy.Allow:
		return nil
	case policy.Unavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "permission resolution unavailable")
	default:
		return echo.NewHTTPError(http.StatusForbidden, "sensitive fields not permitted")
	}
}

type sealRequest struct {
	Plaintext string `json:"plaintext"`
}

func (h *Handler) Seal(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	if err := h.gate(c, patientID); err != nil {
		return err
	}

	var req sealRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Plaintext == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "plaintext is required")
	}

	env, err := h.svc.Seal(c.Request().Context(), patientID, req.Plaintext)
	if errors.Is(err, privacy.ErrKeyUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "content key unavailable")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "seal failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"envelope": env,
		"compact":  env.String(),
	})
}

type revealRequest struct {
	Envelope  json.RawMessage `json:"envelope,omitempty"`
	Plaintext *string         `json:"plaintext,omitempty"`
}

func (h *Handler) Reveal(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	if err := h.gate(c, patientID); err != nil {
		return err
	}

	var req revealRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res := h.svc.Reveal(c.Request().Context(), patientID, privacy.EncryptedField{
		Envelope:        req.Envelope,
		LegacyPlaintext: req.Plaintext,
	})

	body := map[string]interface{}{"state": res.State.String()}
	if res.State == privacy.FieldClear {
		body["plaintext"] = res.Plaintext
	}
	return c.JSON(http.StatusOK, body)
}
