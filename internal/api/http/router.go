package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/api/http/handlers"
	"github.com/campusflow/campus-queue/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Staff          *handlers.StaffHandler
	Emergencies    *handlers.EmergencyHandler
	Admin          *handlers.AdminHandler
	Events         *handlers.EventsHandler
	AuthMiddleware *auth.Middleware
	JoinLimiter    fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	mw := cfg.AuthMiddleware
	joinLimiter := cfg.JoinLimiter
	if joinLimiter == nil {
		joinLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics/snapshot", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/logout", mw.Authenticate, auth.Require(auth.CapLogout), cfg.Users.Logout)
	authGroup.Get("/me", mw.Authenticate, auth.Require(auth.CapViewProfile), cfg.Users.Me)

	api := app.Group("/api")
	api.Get("/departments", mw.Optional, cfg.Admin.ListDepartments)
	api.Get("/emergency/status", cfg.Emergencies.Status)
	api.Get("/queue/:departmentId/current", cfg.Tickets.Current)
	api.Get("/queue/:departmentId/crowd", cfg.Tickets.Crowd)
	api.Get("/events", mw.Optional, cfg.Events.Stream)

	student := api.Group("/student", mw.Authenticate)
	student.Post("/join", joinLimiter, auth.Require(auth.CapJoinQueue), cfg.Tickets.StudentJoin)
	student.Post("/cancel", auth.Require(auth.CapCancelTicket), cfg.Tickets.Cancel)
	student.Get("/ticket", auth.Require(auth.CapViewOwnTicket), cfg.Tickets.Restore)
	student.Get("/history", auth.Require(auth.CapViewHistory), cfg.Tickets.History)
	student.Post("/emergency", auth.Require(auth.CapRequestEmergency), cfg.Emergencies.Request)
	student.Post("/feedback", auth.Require(auth.CapSubmitFeedback), cfg.Tickets.Feedback)

	api.Post("/guest/join", joinLimiter, mw.Guest(true), auth.Require(auth.CapJoinQueue), cfg.Tickets.GuestJoin)
	api.Post("/guest/cancel", mw.Guest(false), auth.Require(auth.CapCancelTicket), cfg.Tickets.Cancel)
	api.Get("/guest/restore", mw.Guest(false), auth.Require(auth.CapViewOwnTicket), cfg.Tickets.Restore)
	api.Get("/guest/entry/:qrId", cfg.Tickets.ResolveEntry)

	staff := api.Group("/staff", mw.Authenticate)
	staff.Post("/call-next", auth.Require(auth.CapOperateQueue), cfg.Staff.CallNext)
	staff.Post("/complete", auth.Require(auth.CapOperateQueue), cfg.Staff.Complete)
	staff.Post("/toggle-queue", auth.Require(auth.CapOperateQueue), cfg.Staff.ToggleQueue)
	staff.Post("/set-limit", auth.Require(auth.CapOperateQueue), cfg.Staff.SetLimit)
	staff.Post("/increase-limit", auth.Require(auth.CapOperateQueue), cfg.Staff.IncreaseLimit)
	staff.Post("/walk-in", auth.Require(auth.CapWalkIn), cfg.Staff.WalkIn)
	staff.Get("/queue-stats", auth.Require(auth.CapOperateQueue), cfg.Staff.QueueStats)
	staff.Get("/me", auth.Require(auth.CapOperateQueue), cfg.Staff.Profile)
	staff.Get("/department/qr", auth.Require(auth.CapIssueEntry), cfg.Staff.DepartmentQR)
	staff.Get("/emergencies", auth.Require(auth.CapReviewEmergency), cfg.Emergencies.ListPending)
	staff.Get("/emergencies/count", auth.Require(auth.CapReviewEmergency), cfg.Emergencies.CountPending)
	staff.Post("/emergencies/:id/approve", auth.Require(auth.CapReviewEmergency), cfg.Emergencies.Approve)
	staff.Post("/emergencies/:id/reject", auth.Require(auth.CapReviewEmergency), cfg.Emergencies.Reject)
	staff.Post("/emergency/start", auth.Require(auth.CapRunEmergency), cfg.Emergencies.Start)
	staff.Post("/emergency/end", auth.Require(auth.CapRunEmergency), cfg.Emergencies.End)

	admin := api.Group("/admin", mw.Authenticate)
	admin.Post("/departments", auth.Require(auth.CapManageDepartments), cfg.Admin.CreateDepartment)
	admin.Post("/departments/:id/deactivate", auth.Require(auth.CapManageDepartments), cfg.Admin.DeactivateDepartment)
	admin.Get("/staff", auth.Require(auth.CapAssignStaff), cfg.Admin.ListStaff)
	admin.Post("/staff", auth.Require(auth.CapAssignStaff), cfg.Admin.CreateStaff)
	admin.Post("/staff/assign", auth.Require(auth.CapAssignStaff), cfg.Admin.AssignStaff)
}
