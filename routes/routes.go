package routes

import (
	"time"

	"github.com/bracketops/matchday/handlers"
	"github.com/bracketops/matchday/middleware"
	"github.com/bracketops/matchday/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret []byte,
	matchHandler *handlers.MatchHandler,
	standingsHandler *handlers.StandingsHandler,
	recordHandler *handlers.RecordHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Throttle(120, time.Minute))

	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Live audit stream, one room per tournament.
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		// Public read endpoints
		r.Get("/matches", matchHandler.ListMatchesHandler)
		r.Get("/matches/{matchID}", matchHandler.GetMatchHandler)
		r.Get("/standings", standingsHandler.ListStandingsHandler)

		// Lifecycle transitions require an authenticated team actor.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))

			r.Post("/matches/{matchID}/submit", matchHandler.SubmitHandler)
			r.Post("/matches/{matchID}/confirm", matchHandler.ConfirmHandler)
			r.Post("/matches/{matchID}/complete", matchHandler.CompleteHandler)
			r.Post("/matches/{matchID}/forfeit", matchHandler.ForfeitHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.Use(middleware.RequireRole(models.RoleOrganizer))

			r.Get("/records", recordHandler.ListRecordsHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Post("/records/archive", recordHandler.ArchiveRecordsHandler)
		})
	})
}
