package handlers

import (
	"log"
	"net/http"
	"strconv"

	"fraudulert-backend/internal/auth"
)

// DashboardMetrics godoc
// @Summary      Aggregate metrics for visible accounts
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} storage.DashboardMetrics
// @Router       /v1/dashboard/metrics [get]
func (h *Handler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	creators, err := h.visibleCreators(r, principal)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}

	metrics, err := h.storage.GetDashboardMetrics(r.Context(), creators)
	if err != nil {
		log.Printf("ERROR dashboard metrics uid=%s: %v", principal.UID, err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

// RiskDistribution godoc
// @Summary      Prediction counts per risk category
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} storage.RiskBucket
// @Router       /v1/dashboard/risk-distribution [get]
func (h *Handler) RiskDistribution(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	creators, err := h.visibleCreators(r, principal)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}

	buckets, err := h.storage.GetRiskDistribution(r.Context(), creators)
	if err != nil {
		log.Printf("ERROR risk distribution uid=%s: %v", principal.UID, err)
		http.Error(w, "failed to load distribution", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, buckets)
}

// HighRiskTransactions godoc
// @Summary      Latest high risk transactions
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Max rows"
// @Success      200 {array} storage.HighRiskTransaction
// @Router       /v1/dashboard/high-risk [get]
func (h *Handler) HighRiskTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	creators, err := h.visibleCreators(r, principal)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.storage.GetHighRiskTransactions(r.Context(), creators, limit)
	if err != nil {
		log.Printf("ERROR high risk transactions uid=%s: %v", principal.UID, err)
		http.Error(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// Healthz godoc
// @Summary      Liveness and database health
// @Tags         system
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      503 {object} map[string]string
// @Router       /healthz [get]
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
