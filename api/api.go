// Package api exposes the election core over HTTP: voter registration, proof
// requests, the admin lifecycle transitions and read-only election info. It
// maps the core's sentinel errors onto a stable numeric error taxonomy.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/anonvote/anonvote/log"
	stg "github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/types"
)

// CoordinatorService is the election lifecycle surface the API exposes.
// *coordinator.Coordinator satisfies it.
type CoordinatorService interface {
	Register(electionID uuid.UUID, email, identityToken string) error
	Finalize(ctx context.Context, electionID uuid.UUID, votingEnd time.Time) (*types.Election, error)
	Complete(electionID uuid.UUID) error
	Proof(electionID uuid.UUID, identityToken string) (*types.MerkleProofWitness, error)
}

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the storage and coordinator instances.
type APIConfig struct {
	Host        string
	Port        int
	Storage     *stg.Storage
	Coordinator CoordinatorService
}

// API type represents the API HTTP server.
type API struct {
	router      *chi.Mux
	storage     *stg.Storage
	coordinator CoordinatorService
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Coordinator == nil {
		return nil, fmt.Errorf("missing coordinator instance")
	}
	a := &API{
		storage:     conf.Storage,
		coordinator: conf.Coordinator,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "GET")
	a.router.Get(ElectionsEndpoint, a.elections)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", RegisterEndpoint, "method", "POST")
	a.router.Post(RegisterEndpoint, a.register)
	log.Infow("register handler", "endpoint", ProofEndpoint, "method", "POST")
	a.router.Post(ProofEndpoint, a.proof)
	log.Infow("register handler", "endpoint", FinalizeEndpoint, "method", "POST")
	a.router.Post(FinalizeEndpoint, a.finalize)
	log.Infow("register handler", "endpoint", CompleteEndpoint, "method", "POST")
	a.router.Post(CompleteEndpoint, a.complete)
	log.Infow("register handler", "endpoint", IncidentsEndpoint, "method", "GET")
	a.router.Get(IncidentsEndpoint, a.incidents)
	log.Infow("register handler", "endpoint", TestSetElectionEndpoint, "method", "POST")
	a.router.Post(TestSetElectionEndpoint, a.setElectionForTest)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
