package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whodunit/platform/internal/auth"
	"github.com/whodunit/platform/internal/game"
	"github.com/whodunit/platform/internal/guard"
	"github.com/whodunit/platform/internal/handler"
	"github.com/whodunit/platform/internal/infra"
	"github.com/whodunit/platform/internal/provider"
	"github.com/whodunit/platform/internal/repository"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool            *pgxpool.Pool
	Identity        *auth.Manager
	Hub             *infra.Hub
	Logger          *slog.Logger
	RandomOrgAPIKey string

	// CORSAllowedOrigins is a comma-separated allow-list; empty means any origin.
	CORSAllowedOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	logger := deps.Logger

	// Repositories
	sessionRepo := repository.NewSessionRepository()
	participantRepo := repository.NewParticipantRepository()
	ballotRepo := repository.NewBallotRepository()
	eventRepo := repository.NewGameEventRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Game engine
	engine := game.NewEngine(pool, sessionRepo, participantRepo, ballotRepo, eventRepo, outboxRepo, logger)
	if deps.RandomOrgAPIKey != "" {
		rng := provider.NewRandomOrgClient(deps.RandomOrgAPIKey, logger)
		engine.UsePicker(rng.DrawIndex)
	}

	// Handlers
	guesses := guard.NewAttemptLimiter(10, time.Minute, 5*time.Minute)
	identityHandler := handler.NewIdentityHandler(deps.Identity)
	sessionHandler := handler.NewSessionHandler(engine, guesses)
	feedHandler := handler.NewFeedHandler(deps.Hub)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS(deps.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Identity issuance (no auth)
	r.Post("/identity", identityHandler.Issue)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(deps.Identity))

		r.Post("/identity/refresh", identityHandler.Refresh)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Post("/join", sessionHandler.Join)
			r.Get("/by-code/{code}", sessionHandler.GetSnapshotByCode)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetSnapshot)
				r.Get("/feed", feedHandler.Stream)
				r.Post("/start", sessionHandler.Start)
				r.Post("/request-vote", sessionHandler.RequestVote)
				r.Post("/eliminate", sessionHandler.Eliminate)
				r.Post("/ballots", sessionHandler.CastBallot)
				r.Post("/tally", sessionHandler.Tally)
				r.Post("/next-round", sessionHandler.NextRound)
			})
		})
	})

	return r
}
