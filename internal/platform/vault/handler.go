package vault

import (
	"errors"
	"net/http"

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
	api.PUT("/accounts/:id/device-key", h.Store)
	api.GET("/accounts/:id/device-key", h.Get)
}

// requireOwner restricts device-key routes to the account owner. Public keys
// are not secret, but the wrapped private material rides the same row and
// only its owner may replace it.
func requireOwner(c echo.Context) (string, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	accountID := c.Param("id")
	if accountID != userID {
		return "", echo.NewHTTPError(http.StatusForbidden, "device keys belong to their account")
	}
	return accountID, nil
}

type storeKeyRequest struct {
	PublicKey  []byte `json:"public_key"`
	WrappedKey []byte `json:"wrapped_key"`
	WrapIV     []byte `json:"wrap_iv"`
	WrapSalt   []byte `json:"wrap_salt"`
	ScryptN    int    `json:"scrypt_n"`
	ScryptR    int    `json:"scrypt_r"`
	ScryptP    int    `json:"scrypt_p"`
}

// Store accepts a record the device generated and wrapped locally. The
// server never sees the device secret or the unwrapped private key.
func (h *Handler) Store(c echo.Context) error {
	accountID, err := requireOwner(c)
	if err != nil {
		return err
	}

	var req storeKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec := &KeyRecord{
		AccountID:  accountID,
		PublicKey:  req.PublicKey,
		WrappedKey: req.WrappedKey,
		WrapIV:     req.WrapIV,
		WrapSalt:   req.WrapSalt,
		ScryptN:    req.ScryptN,
		ScryptR:    req.ScryptR,
		ScryptP:    req.ScryptP,
	}
	if err := h.svc.Store(c.Request().Context(), rec); err != nil {
		if errors.Is(err, ErrGenerationFailed) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "device key store unavailable")
	}
	return c.JSON(http.StatusOK, rec.Public())
}

func (h *Handler) Get(c echo.Context) error {
	accountID, err := requireOwner(c)
	if err != nil {
		return err
	}

	pub, err := h.svc.Get(c.Request().Context(), accountID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no device key for account")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "device key store unavailable")
	}
	return c.JSON(http.StatusOK, pub)
}
