package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/pkg/authsdk"
	"github.com/aussiebroadwan/keystone/pkg/httpx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var dashboardTmpl = template.Must(template.New("dashboard.html.tmpl").Funcs(template.FuncMap{
	"mib": func(b float64) string { return fmt.Sprintf("%.1f", b/(1<<20)) },
}).ParseFS(templateFS, "templates/dashboard.html.tmpl"))

type AnalyticsHandler struct {
	AnalyticsService *service.AnalyticsService
}

// dashboardView is the summary plus who is looking at it.
type dashboardView struct {
	authsdk.AnalyticsSummaryResponse
	Viewer string
}

func (h *AnalyticsHandler) summary(w http.ResponseWriter, r *http.Request) (authsdk.AnalyticsSummaryResponse, bool) {
	window, err := service.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeServiceError(w, r, err)
		return authsdk.AnalyticsSummaryResponse{}, false
	}
	sum, err := h.AnalyticsService.Summary(r.Context(), window)
	if err != nil {
		writeServiceError(w, r, err)
		return authsdk.AnalyticsSummaryResponse{}, false
	}
	return summaryResponse(sum), true
}

// HandleSummary returns traffic and runtime figures.
//
//	@Summary		Analytics summary
//	@Description	Aggregates request logs over the window together with account and runtime figures. Requires ADMIN or above.
//	@Tags			Analytics
//	@Security		BearerAuth
//	@Produce		json
//	@Param			window	query		string	false	"Window such as 1h, 24h or 7d (default 24h)"
//	@Success		200		{object}	authsdk.AnalyticsSummaryResponse
//	@Failure		400		{object}	authsdk.APIError	"Bad window"
//	@Failure		403		{object}	authsdk.APIError	"Insufficient role"
//	@Router			/v1/analytics/summary [get].
func (h *AnalyticsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.summary(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleDashboard renders the summary as HTML.
func (h *AnalyticsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.summary(w, r)
	if !ok {
		return
	}
	p, _ := httpx.PrincipalFrom(r.Context())

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, dashboardView{AnalyticsSummaryResponse: resp, Viewer: p.Email}); err != nil {
		slogx.FromContext(r.Context()).Error("dashboard render failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
