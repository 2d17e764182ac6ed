package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/oauth2"

	"github.com/susu3304/chipledger/internal/config"
	"github.com/susu3304/chipledger/internal/notify"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/room"
)

type API struct {
	router      *mux.Router
	config      *config.Config
	rooms       *room.Service
	players     *player.Service
	notifier    *notify.Dispatcher
	oauthConfig *oauth2.Config
	jwtSecret   []byte

	// discordAPIBase and httpClient are swapped out in tests.
	discordAPIBase string
	httpClient     *http.Client
	now            func() time.Time
}

func New(cfg *config.Config, rooms *room.Service, players *player.Service, notifier *notify.Dispatcher) *API {
	api := &API{
		router:    mux.NewRouter(),
		config:    cfg,
		rooms:     rooms,
		players:   players,
		notifier:  notifier,
		jwtSecret: []byte(cfg.JWTSecret),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
		discordAPIBase: "https://discord.com/api",
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/players/register", a.handleRegister).Methods("POST")
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("POST")
	a.router.HandleFunc("/api/auth/discord/login", a.handleDiscordLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/discord/callback", a.handleDiscordCallback).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/rooms", a.handleCreateRoom).Methods("POST")
	protected.HandleFunc("/rooms/latest", a.handleLatestRoom).Methods("GET")
	protected.HandleFunc("/rooms/{room_id}", a.handleRoomDetails).Methods("GET")
	protected.HandleFunc("/rooms/{room_id}/players", a.handleAddPlayer).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/players/{user_id}/chips", a.handleUpdateChips).Methods("PUT")
	protected.HandleFunc("/rooms/{room_id}/players/{user_id}/rebuys", a.handleRebuy).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/settle", a.handleSettle).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/summary", a.handleSummary).Methods("POST")
	protected.HandleFunc("/players/{user_id}/rooms", a.handlePlayerRooms).Methods("GET")
	protected.HandleFunc("/players/{user_id}/regulars", a.handleRegulars).Methods("GET")
}

// Handler returns the router wrapped with CORS handling.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false, // must stay false with a wildcard origin
	}
	if len(a.config.CORSAllowedOrigins) > 0 {
		corsOptions.AllowedOrigins = a.config.CORSAllowedOrigins
		corsOptions.AllowCredentials = true
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Server returns an HTTP server bound to the configured address. The caller
// owns ListenAndServe and Shutdown.
func (a *API) Server() *http.Server {
	log.Printf("API server listening on http://%s", a.config.WebBind)
	return &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
