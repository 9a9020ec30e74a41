package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// NewServer mounts the gateway routes on a fiber app.
func NewServer(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "rpsgw",
		DisableStartupMessage: true,
		BodyLimit:             256 * 1024,
	})
	app.Use(recover.New())

	app.Get(RouteHealth, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get(RoutePublicKey, func(c *fiber.Ctx) error {
		return c.JSON(PublicKeyResponse{PublicKey: sealcrypto.BytesToHex(svc.PublicKey())})
	})
	app.Post(RouteUserDecrypt, func(c *fiber.Ctx) error {
		var req UserDecryptRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, types.ErrInvalidRequest.Wrap("invalid json"))
		}
		resp, err := svc.UserDecrypt(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(resp)
	})
	return app
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, CodeInternal
	msg := "internal error"
	var ie internalError
	switch {
	case errors.As(err, &ie):
	case errors.Is(err, types.ErrInvalidRequest):
		status, code, msg = fiber.StatusBadRequest, CodeInvalidRequest, err.Error()
	case errors.Is(err, types.ErrAuthorizationExpired):
		status, code, msg = fiber.StatusUnauthorized, CodeAuthorizationExpired, err.Error()
	case errors.Is(err, types.ErrGatewayRejected):
		status, code, msg = fiber.StatusForbidden, CodeRejected, err.Error()
	case errors.Is(err, types.ErrNotFound):
		status, code, msg = fiber.StatusNotFound, CodeNotFound, err.Error()
	}
	return c.Status(status).JSON(ErrorResponse{Code: code, Message: msg})
}
