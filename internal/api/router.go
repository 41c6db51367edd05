package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/cache"
	"github.com/soaringjerry/Archetype/internal/models"
	"github.com/soaringjerry/Archetype/internal/services"
)

// Router exposes the data service to the application over loopback HTTP.
// Every route is offline-capable: handlers never block on the remote API.
type Router struct {
	svc    *services.DataService
	logger *zap.Logger
}

func NewRouter(svc *services.DataService, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{svc: svc, logger: logger}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/respondents", rt.handleRespondents)       // POST
	mux.HandleFunc("/api/respondents/", rt.handleRespondentScoped) // GET, PUT, /sessions, /logs
	mux.HandleFunc("/api/sessions", rt.handleSessions)             // POST
	mux.HandleFunc("/api/sessions/", rt.handleSessionScoped)       // GET, PUT, /answers, /complete, /abandon, /stats
	mux.HandleFunc("/api/answers", rt.handleAnswers)               // POST
	mux.HandleFunc("/api/orders", rt.handleOrders)                 // POST
	mux.HandleFunc("/api/orders/", rt.handleOrderScoped)           // GET, /outcome
	mux.HandleFunc("/api/logs", rt.handleLogs)                     // POST
	mux.HandleFunc("/api/shares", rt.handleShares)                 // POST
	mux.HandleFunc("/api/shares/", rt.handleShareScoped)           // /events
	mux.HandleFunc("/api/backup", rt.handleBackup)                 // GET, POST
	mux.HandleFunc("/api/status", rt.handleStatus)                 // GET
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid:
			http.Error(w, se.Message, http.StatusBadRequest)
		case services.ErrorNotFound:
			http.Error(w, se.Message, http.StatusNotFound)
		case services.ErrorConflict:
			http.Error(w, se.Message, http.StatusConflict)
		case services.ErrorCapacity:
			http.Error(w, se.Message, http.StatusInsufficientStorage)
		case services.ErrorUnavailable:
			http.Error(w, se.Message, http.StatusServiceUnavailable)
		default:
			http.Error(w, se.Message, http.StatusInternalServerError)
		}
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// POST /api/respondents
func (rt *Router) handleRespondents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.Respondent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.CreateRespondent(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GET|PUT /api/respondents/{id}
// GET /api/respondents/{id}/sessions
// GET /api/respondents/{id}/logs?limit=n
func (rt *Router) handleRespondentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/respondents/"), "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rec, err := rt.svc.GetRespondent(r.Context(), id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		case http.MethodPut:
			var upd cache.RespondentUpdate
			if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rec, err := rt.svc.UpdateRespondent(r.Context(), id, upd)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	switch parts[1] {
	case "sessions":
		list, err := rt.svc.History(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case "logs":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := rt.svc.RespondentLogs(r.Context(), id, limit)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		http.NotFound(w, r)
	}
}

// POST /api/sessions
func (rt *Router) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.TestSession
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.StartSession(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GET|PUT /api/sessions/{id}
// GET /api/sessions/{id}/answers
// DELETE /api/sessions/{id}/answers/{questionIndex}
// GET /api/sessions/{id}/stats
// POST /api/sessions/{id}/complete  {"override_type": "..."}
// POST /api/sessions/{id}/abandon
func (rt *Router) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rec, err := rt.svc.GetSession(r.Context(), id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		case http.MethodPut:
			var upd cache.SessionUpdate
			if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rec, err := rt.svc.UpdateSession(r.Context(), id, upd)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	switch parts[1] {
	case "answers":
		if len(parts) == 3 && r.Method == http.MethodDelete {
			idx, err := strconv.Atoi(parts[2])
			if err != nil {
				http.Error(w, "invalid question index", http.StatusBadRequest)
				return
			}
			if err := rt.svc.ClearAnswer(r.Context(), id, idx); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		list, err := rt.svc.SessionAnswers(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case "stats":
		st, err := rt.svc.SessionAnswerStats(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case "complete":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			OverrideType string `json:"override_type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		rec, err := rt.svc.CompleteSession(r.Context(), id, req.OverrideType)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case "abandon":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rec, err := rt.svc.AbandonSession(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		http.NotFound(w, r)
	}
}

// POST /api/answers
func (rt *Router) handleAnswers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.AnswerRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.SaveAnswer(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// POST /api/orders
func (rt *Router) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.PaymentOrder
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.CreateOrder(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GET /api/orders/{id}
// POST /api/orders/{id}/outcome  {"status","gateway_order_id","gateway_trade_no"}
func (rt *Router) handleOrderScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/orders/"), "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		rec, err := rt.svc.GetOrder(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	if parts[1] != "outcome" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Status         string `json:"status"`
		GatewayOrderID string `json:"gateway_order_id"`
		GatewayTradeNo string `json:"gateway_trade_no"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.ApplyGatewayOutcome(r.Context(), id, req.Status, req.GatewayOrderID, req.GatewayTradeNo)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// POST /api/logs
func (rt *Router) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.BehaviorLog
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.LogBehavior(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// POST /api/shares
func (rt *Router) handleShares(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.ShareRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.CreateShare(r.Context(), &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// POST /api/shares/{id}/events  {"kind":"view|click|conversion"}
func (rt *Router) handleShareScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/shares/"), "/")
	if len(parts) != 2 || parts[1] != "events" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := rt.svc.RegisterShareEvent(r.Context(), parts[0], req.Kind)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/backup — full snapshot
// POST /api/backup — full restore
func (rt *Router) handleBackup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := rt.svc.ExportAll()
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=archetype-backup.json")
		writeJSON(w, http.StatusOK, snap)
	case http.MethodPost:
		var snap cache.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := rt.svc.ImportAll(&snap); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/status
func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := rt.svc.QueueLength()
	if err != nil {
		writeErr(w, err)
		return
	}
	stats, err := rt.svc.StoreStats()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  rt.svc.Online(),
		"pending": pending,
		"store":   stats,
	})
}
