package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-scan/pkg/jwt"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Sessions  sessionRegistry
	JWTSecret string
	Log       *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	anyOperator := RequireRole(jwt.RoleOperator, jwt.RoleSupervisor, jwt.RoleAdmin)
	supervisors := RequireRole(jwt.RoleSupervisor, jwt.RoleAdmin)

	// Órdenes: sesiones de escaneo y comandos
	orders := protected.Group("/orders", anyOperator)
	h := NewOrderHandler(deps.Sessions, deps.Log)
	orders.Post("/:id/sessions", h.OpenSession)
	orders.Delete("/:id/sessions", h.CloseSession)
	orders.Get("/:id", h.GetView)
	orders.Post("/:id/scans", h.Scan)
	orders.Post("/:id/refresh", h.Refresh)
	orders.Patch("/:id/selection", h.Select)
	orders.Post("/:id/pass", h.Pass)
	orders.Post("/:id/cancel", h.Cancel)
	orders.Post("/:id/confirm", supervisors, h.Confirm)
	orders.Put("/:id/details/:detailId/location", h.UpdateLocation)
	orders.Put("/:id/details/:detailId/quantity", h.UpdateQuantity)
}
