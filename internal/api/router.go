package api

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/catalog"
	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/planner"
	"github.com/erazemk/oprema/internal/schedule"
)

// Deps are the services the API is built on.
type Deps struct {
	Log       *slog.Logger
	Custody   *sqlx.DB
	Events    *sqlx.DB
	Catalog   *catalog.Service
	Ledger    *ledger.Ledger
	Planner   *planner.Planner
	Detector  *schedule.Detector
	Suggester *schedule.Suggester
	Metrics   *metrics.Metrics
	JWTSecret string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	catalogHandler := &CatalogHandler{Log: d.Log, Service: d.Catalog}
	custodyHandler := &CustodyHandler{Log: d.Log, DB: d.Custody}
	eventsHandler := &EventsHandler{Log: d.Log, Ledger: d.Ledger, Planner: d.Planner}
	venuesHandler := &VenuesHandler{Log: d.Log, Detector: d.Detector, Suggester: d.Suggester}
	healthHandler := &HealthHandler{Log: d.Log, Custody: d.Custody, Events: d.Events}

	authMW := AuthMiddleware(d.JWTSecret)
	requireCustodian := RequireRole(model.RoleCustodian)

	// Public.
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Catalog (all roles).
	mux.Handle("GET /api/catalog", authMW(http.HandlerFunc(catalogHandler.Catalog)))
	mux.Handle("GET /api/inventory", authMW(http.HandlerFunc(catalogHandler.Inventory)))

	// Custody workflow: read (all roles), write (custodian+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(custodyHandler.ListItems)))
	mux.Handle("POST /api/items", authMW(requireCustodian(http.HandlerFunc(custodyHandler.CreateItem))))
	mux.Handle("GET /api/assets", authMW(http.HandlerFunc(custodyHandler.ListAssets)))
	mux.Handle("POST /api/assets", authMW(requireCustodian(http.HandlerFunc(custodyHandler.RegisterAsset))))
	mux.Handle("PUT /api/assets/{id}/custody", authMW(requireCustodian(http.HandlerFunc(custodyHandler.SetCustody))))
	mux.Handle("POST /api/lots", authMW(requireCustodian(http.HandlerFunc(custodyHandler.AddLot))))
	mux.Handle("PUT /api/lots/{id}/expire", authMW(requireCustodian(http.HandlerFunc(custodyHandler.ExpireLot))))

	// Ledger: read (all roles), write (custodian+).
	mux.Handle("GET /api/events/{id}/reservations", authMW(http.HandlerFunc(eventsHandler.Reservations)))
	mux.Handle("POST /api/events/{id}/reservations", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Reserve))))
	mux.Handle("DELETE /api/events/{id}/reservations", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Release))))
	mux.Handle("POST /api/events/{id}/issue", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Issue))))
	mux.Handle("POST /api/events/{id}/return", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Return))))

	// Planner: read (all roles), decide (custodian+).
	mux.Handle("GET /api/events/{id}/plan", authMW(http.HandlerFunc(eventsHandler.Plan)))
	mux.Handle("POST /api/events/{id}/fulfill", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Fulfill))))
	mux.Handle("POST /api/events/{id}/reject", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Reject))))
	mux.Handle("POST /api/events/{id}/reconcile", authMW(requireCustodian(http.HandlerFunc(eventsHandler.Reconcile))))

	// Venues (all roles).
	mux.Handle("GET /api/venues/availability", authMW(http.HandlerFunc(venuesHandler.Availability)))
	mux.Handle("GET /api/venues/conflicts", authMW(http.HandlerFunc(venuesHandler.Conflicts)))
	mux.Handle("GET /api/venues/schedule", authMW(http.HandlerFunc(venuesHandler.Schedule)))
	mux.Handle("GET /api/venues/suggestions", authMW(http.HandlerFunc(venuesHandler.Suggestions)))
	mux.Handle("POST /api/venues/accept", authMW(http.HandlerFunc(venuesHandler.Accept)))

	return LoggingMiddleware(d.Log, d.Metrics)(mux)
}
