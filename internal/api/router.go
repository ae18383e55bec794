// Package api serves the HTTP side of the bot: health and metrics, the
// Telegram webhook, report share links and the admin endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/middleware"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// DocumentRenderer renders a report in memory.
type DocumentRenderer interface {
	Bytes(ctx context.Context, doc *services.Document) ([]byte, error)
}

// Deps configures the router. Nil Share, Metrics or Webhook leaves the
// matching routes unregistered.
type Deps struct {
	Reports           services.ReportStore
	Admin             services.AdminStore
	Renderer          DocumentRenderer
	Share             *middleware.ShareSigner
	AdminPasswordHash string
	Metrics           http.Handler
	Webhook           http.Handler
	WebhookPath       string
	Commit            string
	BuildTime         string
	Logger            *zap.Logger
}

type Router struct {
	d      Deps
	logger *zap.Logger
}

func NewRouter(d Deps) *Router {
	return &Router{d: d, logger: logging.OrNop(d.Logger)}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", rt.handleHealth)
	mux.HandleFunc("GET /version", rt.handleVersion)
	if rt.d.Metrics != nil {
		mux.Handle("GET /metrics", rt.d.Metrics)
	}
	if rt.d.Webhook != nil && rt.d.WebhookPath != "" {
		mux.Handle("POST "+rt.d.WebhookPath, rt.d.Webhook)
	}
	if rt.d.Share != nil && rt.d.Reports != nil && rt.d.Renderer != nil {
		mux.Handle("GET /api/reports/{id}", rt.d.Share.RequireShareToken(http.HandlerFunc(rt.handleReport)))
	}
	if rt.d.Admin != nil {
		admin := middleware.RequireAdmin(rt.d.AdminPasswordHash)
		mux.Handle("GET /api/admin/access-codes", admin(http.HandlerFunc(rt.handleListCodes)))
		mux.Handle("POST /api/admin/access-codes", admin(http.HandlerFunc(rt.handlePutCode)))
		mux.Handle("GET /api/admin/submissions.csv", admin(http.HandlerFunc(rt.handleExport)))
	}
}

// Handler returns the full middleware chain around a fresh mux.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return middleware.AccessLog(rt.logger)(middleware.NoStore(middleware.SecureHeaders(mux)))
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       "Values Report Bot",
		"commit":     rt.d.Commit,
		"build_time": rt.d.BuildTime,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commit": rt.d.Commit, "build_time": rt.d.BuildTime})
}

// GET /api/reports/{id}?token=...
// The report renders from the submission snapshot stored with it, so a later
// resubmission by the same user does not alter an old download.
func (rt *Router) handleReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ShareClaimsFromContext(r.Context())
	if !ok {
		writeError(w, services.NewForbiddenError("missing share claims"))
		return
	}
	id := claims.RID
	report, err := rt.d.Reports.GetReport(r.Context(), id)
	if err != nil {
		rt.fail(w, "load report", err, zap.String("report_id", id))
		return
	}
	sub := report.Snapshot
	if sub == nil {
		sub, err = rt.d.Reports.GetSubmission(r.Context(), report.SubmissionID)
		if err != nil {
			rt.fail(w, "load submission", err, zap.String("report_id", id))
			return
		}
	}
	data, err := rt.d.Renderer.Bytes(r.Context(), services.NewDocument(sub, report))
	if err != nil {
		rt.fail(w, "render report", err, zap.String("report_id", id))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.ArtifactName(sub.UserID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// POST /api/admin/access-codes {"code": "...", "remaining_uses": n}
func (rt *Router) handlePutCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code          string `json:"code"`
		RemainingUses *int   `json:"remaining_uses"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	if req.RemainingUses == nil {
		writeError(w, services.NewInvalidError("remaining_uses is required"))
		return
	}
	ac := &services.AccessCode{Code: strings.TrimSpace(req.Code), RemainingUses: *req.RemainingUses}
	if err := rt.d.Admin.PutAccessCode(r.Context(), ac); err != nil {
		rt.fail(w, "put access code", err)
		return
	}
	rt.logger.Info("access code saved", zap.String("code", logging.MaskCode(ac.Code)), zap.Int("remaining", ac.RemainingUses))
	writeJSON(w, http.StatusCreated, ac)
}

// GET /api/admin/access-codes
func (rt *Router) handleListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := rt.d.Admin.ListAccessCodes(r.Context())
	if err != nil {
		rt.fail(w, "list access codes", err)
		return
	}
	if codes == nil {
		codes = []*services.AccessCode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_codes": codes})
}

// GET /api/admin/submissions.csv
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	subs, err := rt.d.Admin.ListSubmissions(r.Context())
	if err != nil {
		rt.fail(w, "list submissions", err)
		return
	}
	data, err := services.ExportSubmissionsCSV(subs)
	if err != nil {
		rt.fail(w, "export submissions", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="submissions.csv"`)
	_, _ = w.Write(data)
}

func (rt *Router) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	if writeError(w, err) {
		return
	}
	rt.logger.Error(op+" failed", append(fields, zap.Error(err))...)
}
