package circle

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/circles", h.CreateCircle)
	api.GET("/circles/:id", h.GetCircle)
	api.PUT("/circles/:id", h.RenameCircle)
	api.GET("/circles/:id/members", h.ListMembers)
	api.PUT("/circles/:id/members/:userID", h.UpsertMember)
	api.DELETE("/circles/:id/members/:userID", h.RemoveMember)
}

// actingMember resolves the authenticated caller's membership in the circle.
// Non-members get 403: from the outside a circle they do not belong to is
// indistinguishable from one that does not exist.
func (h *Handler) actingMember(c echo.Context, patientID uuid.UUID) (*Member, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	m, err := h.svc.GetMember(c.Request().Context(), patientID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not a member of this circle")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "membership lookup failed")
	}
	return m, nil
}

type createCircleRequest struct {
	DisplayName *string `json:"display_name"`
	Role        Role    `json:"role"`
}

func (h *Handler) CreateCircle(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	var req createCircleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Role == "" {
		req.Role = RolePatient
	}

	circle, err := h.svc.CreateCircle(c.Request().Context(), req.DisplayName, userID, req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, circle)
}

func (h *Handler) GetCircle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	if _, err := h.actingMember(c, id); err != nil {
		return err
	}

	circle, err := h.svc.GetCircle(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "circle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "circle lookup failed")
	}
	return c.JSON(http.StatusOK, circle)
}

type renameCircleRequest struct {
	DisplayName *string `json:"display_name"`
}

func (h *Handler) RenameCircle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, id)
	if err != nil {
		return err
	}

	var req renameCircleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	switch err := h.svc.Rename(c.Request().Context(), acting, id, req.DisplayName); {
	case errors.Is(err, ErrNotController):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "circle not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "rename failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListMembers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	if _, err := h.actingMember(c, id); err != nil {
		return err
	}

	members, err := h.svc.ListMembers(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "member listing failed")
	}
	return c.JSON(http.StatusOK, members)
}

type upsertMemberRequest struct {
	Role Role `json:"role"`
}

func (h *Handler) UpsertMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, id)
	if err != nil {
		return err
	}

	var req upsertMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.svc.AddMember(c.Request().Context(), acting, id, c.Param("userID"), req.Role)
	switch {
	case errors.Is(err, ErrNotController):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrLastController):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid circle id")
	}
	acting, err := h.actingMember(c, id)
	if err != nil {
		return err
	}

	switch err := h.svc.RemoveMember(c.Request().Context(), acting, id, c.Param("userID")); {
	case errors.Is(err, ErrNotController):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrLastController):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "member not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "member removal failed")
	}
	return c.NoContent(http.StatusNoContent)
}
