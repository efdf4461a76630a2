package routes

import (
	"github.com/gofiber/fiber/v2"

	"crm-backend/controllers"
	"crm-backend/middlewares"
	"crm-backend/models"
)

// Register wires all HTTP routes.
func Register(app *fiber.App, ctl *controllers.Controller) {
	api := app.Group("/api")

	// JWT auth, then the idempotency guard (needs the user id)
	protected := []fiber.Handler{
		middlewares.IsAuthenticatedHeader(ctl.DB, ctl.Config.Auth),
		middlewares.Idempotency(ctl.DB, ctl.Log),
	}
	adminOnly := middlewares.RequireRoles(models.RoleAdmin)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "ok"})
	})

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", ctl.Register)
	auth.Post("/login", ctl.Login)
	auth.Post("/forgot-password", ctl.ForgotPassword)
	auth.Put("/reset-password/:token", ctl.ResetPassword)
	auth.Get("/me", append(protected, ctl.Me)...)
	auth.Get("/google-auth-url", append(protected, ctl.GoogleAuthURL)...)
	auth.Post("/google-callback", append(protected, ctl.GoogleCallback)...)
	auth.Delete("/google-disconnect", append(protected, ctl.GoogleDisconnect)...)

	// Users
	users := api.Group("/users", protected...)
	users.Put("/profile", ctl.UpdateProfile)
	users.Put("/change-password", ctl.ChangePassword)
	users.Get("/all", adminOnly, ctl.GetUsers)
	users.Put("/:id/role", adminOnly, ctl.UpdateUserRole)

	// Customers
	customers := api.Group("/customers", protected...)
	customers.Get("/", ctl.GetCustomers)
	customers.Post("/", ctl.CreateCustomer)
	customers.Get("/stats", ctl.GetCustomerStats)
	customers.Get("/:id", ctl.GetCustomer)
	customers.Put("/:id", ctl.UpdateCustomer)
	customers.Delete("/:id", ctl.DeleteCustomer)

	// Interactions
	interactions := api.Group("/interactions", protected...)
	interactions.Get("/", ctl.GetInteractions)
	interactions.Post("/", ctl.CreateInteraction)
	interactions.Get("/follow-ups", ctl.GetFollowUps)
	interactions.Get("/customer/:customerId", ctl.GetCustomerInteractions)
	interactions.Get("/:id", ctl.GetInteraction)
	interactions.Put("/:id", ctl.UpdateInteraction)
	interactions.Delete("/:id", ctl.DeleteInteraction)

	// Proposals
	proposals := api.Group("/proposals", protected...)
	proposals.Get("/", ctl.GetProposals)
	proposals.Post("/", ctl.CreateProposal)
	proposals.Get("/stats", ctl.GetProposalStats)
	proposals.Get("/:id", ctl.GetProposal)
	proposals.Put("/:id", ctl.UpdateProposal)
	proposals.Delete("/:id", ctl.DeleteProposal)
	proposals.Get("/:id/generate-pdf", ctl.GenerateProposalPDF)
	proposals.Post("/:id/send-email", ctl.SendProposalEmail)
	proposals.Post("/:id/convert-to-invoice", ctl.ConvertProposal)

	// Invoices (payments are an append-only ledger)
	invoices := api.Group("/invoices", protected...)
	invoices.Get("/", ctl.GetInvoices)
	invoices.Post("/", ctl.CreateInvoice)
	invoices.Get("/stats", ctl.GetInvoiceStats)
	invoices.Get("/:id", ctl.GetInvoice)
	invoices.Put("/:id", ctl.UpdateInvoice)
	invoices.Delete("/:id", ctl.DeleteInvoice)
	invoices.Get("/:id/generate-pdf", ctl.GenerateInvoicePDF)
	invoices.Post("/:id/send-email", ctl.SendInvoiceEmail)
	invoices.Post("/:id/send-reminder", ctl.SendPaymentReminder)
	invoices.Post("/:id/payments", ctl.AddPayment)

	// Events
	events := api.Group("/events", protected...)
	events.Get("/", ctl.GetEvents)
	events.Post("/", ctl.CreateEvent)
	events.Get("/stats", ctl.GetEventStats)
	events.Post("/sync-google-calendar", ctl.SyncGoogleCalendar)
	events.Get("/:id", ctl.GetEvent)
	events.Put("/:id", ctl.UpdateEvent)
	events.Delete("/:id", ctl.DeleteEvent)
}
