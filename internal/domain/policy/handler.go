package policy

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecircle/carecircle/internal/domain/circle"
	"github.com/carecircle/carecircle/internal/platform/auth"
)

type Handler struct {
	resolver *Resolver
	svc      *Service
	circles  *circle.Service
}

func NewHandler(resolver *Resolver, svc *Service, circles *circle.Service) *Handler {
	return &Handler{resolver: resolver, svc: svc, circles: circles}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/capabilities", h.ListCapabilities)
	api.GET("/circles/:id/permissions", h.ResolveAll)
	api.GET("/circles/:id/permissions/:feature", h.Resolve)
	api.PUT("/circles/:id/defaults/:role/:feature", h.SetRoleDefault)
	api.PUT("/circles/:id/overrides/:userID/:feature", h.SetMemberOverride)
	api.DELETE("/circles/:id/overrides/:userID/:feature", h.ClearMemberOverride)
}

func (h *Handler) actingMember(c echo.Context, patientID uuid.UUID) (*circle.Member, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	m, err := h.circles.GetMember(c.Request().Context(), patientID, userID)
	if errors.Is(err, circle.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not a member of this circle")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "membership lookup failed")
	}
	return m, nil
}

func (h *Handler) ListCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.Catalog().Capabilities())
}

// ResolveAll returns the acting member's whole permission map for the
// circle. A controller may inspect another member's map via ?user_id=.
func (h *Handler) ResolveAll(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, patientID)
	if err != nil {
		return err
	}

	subject := acting
	if target := c.QueryParam("user_id"); target != "" && target != acting.UserID {
		if !acting.IsController() {
			return echo.NewHTTPError(http.StatusForbidden, "only controllers may inspect other members")
		}
		subject, err = h.circles.GetMember(c.Request().Context(), patientID, target)
		if errors.Is(err, circle.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "member not found")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "membership lookup failed")
		}
	}

	perms, err := h.resolver.ResolveAll(c.Request().Context(), patientID, subject)
	if err != nil {
		// Unavailable, not denied: 503 tells the caller to retry, a 403
		// would tell them to give up.
		return echo.NewHTTPError(http.StatusServiceUnavailable, "permission resolution unavailable")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id":  patientID,
		"user_id":     subject.UserID,
		"role":        subject.Role,
		"permissions": perms,
	})
}

func (h *Handler) Resolve(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, patientID)
	if err != nil {
		return err
	}

	feature := c.Param("feature")
	decision := h.resolver.Resolve(c.Request().Context(), patientID, acting, feature)
	if decision == Unavailable {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "permission resolution unavailable")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"feature_key": feature,
		"decision":    decision.String(),
		"allowed":     decision.Allowed(),
	})
}

type setAllowedRequest struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) mutationError(err error) error {
	switch {
	case errors.Is(err, ErrNotController):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnknownFeature):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "policy store unavailable")
	}
}

func (h *Handler) SetRoleDefault(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, patientID)
	if err != nil {
		return err
	}

	var req setAllowedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	role := circle.Role(c.Param("role"))
	if err := h.svc.SetRoleDefault(c.Request().Context(), acting, patientID, role, c.Param("feature"), req.Allowed); err != nil {
		return h.mutationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetMemberOverride(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, patientID)
	if err != nil {
		return err
	}

	var req setAllowedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.SetMemberOverride(c.Request().Context(), acting, patientID, c.Param("userID"), c.Param("feature"), req.Allowed); err != nil {
		return h.mutationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearMemberOverride(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, patientID)
	if err != nil {
		return err
	}

	if err := h.svc.ClearMemberOverride(c.Request().Context(), acting, patientID, c.Param("userID"), c.Param("feature")); err != nil {
		return h.mutationError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
