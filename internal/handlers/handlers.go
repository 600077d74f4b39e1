package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/ingest"
	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/rpc"
	"fraudulert-backend/internal/services"
	"fraudulert-backend/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50MB

// Handler serves the account/prediction gateway: everything it returns is
// filtered through the caller's creator chain.
type Handler struct {
	storage  *storage.Storage
	ingestor *ingest.AccountIngestor
	scorer   *services.ScorerClient
	rpc      *rpc.Client
}

func New(store *storage.Storage, ingestor *ingest.AccountIngestor, scorer *services.ScorerClient, rpcClient *rpc.Client) *Handler {
	return &Handler{
		storage:  store,
		ingestor: ingestor,
		scorer:   scorer,
		rpc:      rpcClient,
	}
}

// ListAccounts godoc
// @Summary      List visible accounts
// @Description  Admins see accounts they created; viewers see their creator's accounts plus their own
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} models.Account
// @Router       /v1/accounts [get]
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var (
		accounts []models.Account
		err      error
	)
	if principal.IsAdmin() {
		accounts, err = h.storage.VisibleAccountsForAdmin(r.Context(), principal.UID)
	} else {
		accounts, err = h.storage.VisibleAccountsForViewer(r.Context(), principal.UID)
	}
	if err != nil {
		log.Printf("ERROR list accounts uid=%s: %v", principal.UID, err)
		http.Error(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// UploadAccounts godoc
// @Summary      Ingest accounts from CSV
// @Description  Validates rows concurrently, inserts with conflict skip, and reports per-row outcomes
// @Tags         accounts
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file formData file true "CSV file"
// @Success      200 {object} models.IngestReport
// @Failure      400 {object} map[string]string
// @Router       /v1/accounts/upload [post]
func (h *Handler) UploadAccounts(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	report, err := h.ingestor.IngestAccounts(r.Context(), file, principal.UID)
	if err != nil {
		log.Printf("ERROR account ingestion uid=%s: %v", principal.UID, err)
		http.Error(w, "ingestion failed", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type uploadTransactionsResponse struct {
	ModelUsed string `json:"model_used"`
	Scored    int    `json:"scored"`
	Stored    int    `json:"stored"`
	Skipped   int    `json:"skipped"`
}

// UploadTransactions godoc
// @Summary      Score a transactions file
// @Description  Forwards the file to the scoring service and stores predictions for visible accounts
// @Tags         predictions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file formData file true "Transactions CSV"
// @Param        model formData string false "Model type"
// @Success      200 {object} uploadTransactionsResponse
// @Failure      502 {object} map[string]string
// @Router       /v1/transactions/upload [post]
func (h *Handler) UploadTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	scored, modelUsed, err := h.scorer.ScoreTransactions(r.Context(), file, header.Filename, r.FormValue("model"))
	if err != nil {
		if errors.Is(err, services.ErrScorerUnavailable) {
			http.Error(w, "scoring service unavailable", http.StatusBadGateway)
			return
		}
		log.Printf("ERROR transaction scoring uid=%s: %v", principal.UID, err)
		http.Error(w, "scoring failed", http.StatusBadRequest)
		return
	}

	creators, err := h.visibleCreators(r, principal)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}

	stored, skipped := 0, 0
	for i := range scored {
		txn := &scored[i]
		visible, err := h.storage.AccountExists(r.Context(), txn.ClientID, creators)
		if err != nil {
			log.Printf("ERROR prediction visibility check client=%s: %v", txn.ClientID, err)
			skipped++
			continue
		}
		if !visible {
			skipped++
			continue
		}

		p := models.Prediction{
			TransactionID:    txn.TransactionID,
			ClientID:         txn.ClientID,
			FraudProbability: txn.FraudProbability,
			FraudCategory:    txn.FraudCategory,
			ModelUsed:        modelUsed,
		}
		if err := h.storage.UpsertPrediction(r.Context(), &p); err != nil {
			log.Printf("ERROR store prediction txn=%s: %v", txn.TransactionID, err)
			skipped++
			continue
		}
		stored++
	}

	writeJSON(w, http.StatusOK, uploadTransactionsResponse{
		ModelUsed: modelUsed,
		Scored:    len(scored),
		Stored:    stored,
		Skipped:   skipped,
	})
}

// ListPredictions godoc
// @Summary      List predictions for visible accounts
// @Tags         predictions
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Max rows"
// @Success      200 {array} models.Prediction
// @Router       /v1/predictions [get]
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
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
	predictions, err := h.storage.ListPredictions(r.Context(), creators, limit)
	if err != nil {
		log.Printf("ERROR list predictions uid=%s: %v", principal.UID, err)
		http.Error(w, "failed to list predictions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, predictions)
}

type scoreTransactionRequest struct {
	ClientID string `json:"client_id"`
	Model    string `json:"model,omitempty"`
}

// ScoreTransaction godoc
// @Summary      Re-score a transaction on demand
// @Description  Request-reply to a live scorer for the caller's organisation
// @Tags         predictions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Transaction id"
// @Param        request body scoreTransactionRequest false "Score parameters"
// @Success      200 {object} models.Prediction
// @Failure      404 {object} map[string]string
// @Failure      503 {object} map[string]string
// @Failure      504 {object} map[string]string
// @Router       /v1/transactions/{id}/score [post]
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	transactionID := chi.URLParam(r, "id")
	if transactionID == "" {
		http.Error(w, "missing transaction id", http.StatusBadRequest)
		return
	}

	var req scoreTransactionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	clientID := req.ClientID
	if clientID == "" {
		existing, err := h.storage.GetPrediction(r.Context(), transactionID)
		if err != nil {
			if errors.Is(err, storage.ErrPredictionNotFound) {
				http.Error(w, "client_id required for unseen transactions", http.StatusBadRequest)
				return
			}
			http.Error(w, "failed to load transaction", http.StatusInternalServerError)
			return
		}
		clientID = existing.ClientID
	}

	creators, err := h.visibleCreators(r, principal)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}
	visible, err := h.storage.AccountExists(r.Context(), clientID, creators)
	if err != nil {
		http.Error(w, "failed to resolve visibility", http.StatusInternalServerError)
		return
	}
	if !visible {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}

	resp, err := h.rpc.ScoreTransaction(principal.Org, transactionID, clientID, req.Model, 0)
	if err != nil {
		httpErrorFromRPC(w, err)
		return
	}

	p := models.Prediction{
		TransactionID:    resp.TransactionID,
		ClientID:         clientID,
		FraudProbability: resp.FraudProbability,
		FraudCategory:    resp.FraudCategory,
		ModelUsed:        resp.ModelUsed,
	}
	if p.FraudCategory == "" {
		p.FraudCategory = models.CategorizeFraud(p.FraudProbability)
	}
	if err := h.storage.UpsertPrediction(r.Context(), &p); err != nil {
		log.Printf("ERROR store prediction txn=%s: %v", transactionID, err)
		http.Error(w, "failed to store prediction", http.StatusInternalServerError)
		return
	}
	p.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, p)
}

// visibleCreators resolves the creator set the caller may read through:
// the admin themselves, or the viewer's creator plus the viewer.
func (h *Handler) visibleCreators(r *http.Request, principal auth.Principal) ([]string, error) {
	if principal.IsAdmin() {
		return []string{principal.UID}, nil
	}

	user, err := h.storage.GetUser(r.Context(), principal.UID)
	if err != nil {
		return nil, err
	}
	creators := []string{principal.UID}
	if user.CreatedBy != nil && *user.CreatedBy != "" {
		creators = append(creators, *user.CreatedBy)
	}
	return creators, nil
}

func httpErrorFromRPC(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rpc.ErrScorerOffline):
		http.Error(w, "no scorer online for organisation", http.StatusServiceUnavailable)
	case errors.Is(err, rpc.ErrTimeout):
		http.Error(w, "scoring request timed out", http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
