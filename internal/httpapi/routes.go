package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

func SetupRoutes(api *API, ws http.Handler, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(opts.AllowedOrigins))

	r.Get("/healthz", Healthz)
	// long-lived; kept out of the request logger
	r.Get("/ws", ws.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RequestLogger(log.Named("http")))

		r.Get("/messages/{lobbyId}", api.Messages)
		r.Get("/initial-room-users/{lobbyId}", api.InitialRoomUsers)
		r.Get("/lobbies/{lobbyId}", api.LobbyState)
		r.Post("/rooms/{lobbyId}/games", api.CreateGame)

		r.Get("/game/{gameId}/questions", api.GameQuestions)
		r.Post("/solution", api.SaveSolution)

		r.Get("/scoreboard", api.Scoreboard)
		r.Get("/scoreboard/{gameId}", api.GameScoreboard)
		r.Post("/finalize-game/{gameId}/{lobbyId}", api.FinalizeGame)

		r.Get("/stats", api.Stats)
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
