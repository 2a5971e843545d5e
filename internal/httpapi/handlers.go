package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/internal/bonus"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
	"github.com/tulen-chik/beltelekom-sub000/internal/rbac"
	"github.com/tulen-chik/beltelekom-sub000/internal/reporting"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
	"github.com/tulen-chik/beltelekom-sub000/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Authenticator
	Bills   *billing.Service
	Bonuses *bonus.Ledger
	Tariffs *tariff.Resolver
	Reports *reporting.Service

	// Now defaults to time.Now; used for the default tariff date.
	Now func() time.Time
}

// RequestContext copies the request logger and client IP into the request
// context so services log with request_id and audit events carry the IP.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.With(c.Request.Context(), logger.FromGin(c))
		ctx = audit.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	pair, acct, err := h.Auth.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrLoginLocked):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "login unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          acct.Role,
		"subscriber_id": acct.SubscriberID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token required")
		return
	}
	pair, acct, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenType) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"role":          acct.Role,
		"subscriber_id": acct.SubscriberID,
	})
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	subscriberID, ok := rbac.ScopeSubscriber(c.Request.Context(), c.Query("subscriber_id"))
	if !ok {
		forbidden(c)
		return
	}
	from, err := calls.ParseDate(c.Query("from"))
	if err != nil {
		badRequest(c, "from must be YYYY-MM-DD")
		return
	}
	to, err := calls.ParseDate(c.Query("to"))
	if err != nil {
		badRequest(c, "to must be YYYY-MM-DD")
		return
	}
	rows, summary, err := h.Reports.Calls(c.Request.Context(), reporting.CallsSummaryRequest{
		SubscriberID: subscriberID,
		From:         from,
		To:           to,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "summary": summary})
}

// --- Tariffs ---

func (h Handlers) GetTariff(c *gin.Context) {
	on := h.now()
	if raw := c.Query("on"); raw != "" {
		d, err := calls.ParseDate(raw)
		if err != nil {
			badRequest(c, "on must be YYYY-MM-DD")
			return
		}
		on = d
	}
	t, err := h.Tariffs.Current(c.Request.Context(), c.Param("zone"), calls.DateOf(on))
	if err != nil {
		if errors.Is(err, tariff.ErrTariffNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// --- Bills ---

type billRequest struct {
	SubscriberID string   `json:"subscriber_id"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	CallIDs      []string `json:"call_ids,omitempty"`
}

func (r billRequest) parse() (billing.GenerateRequest, error) {
	start, err := calls.ParseDate(r.StartDate)
	if err != nil {
		return billing.GenerateRequest{}, err
	}
	end, err := calls.ParseDate(r.EndDate)
	if err != nil {
		return billing.GenerateRequest{}, err
	}
	return billing.GenerateRequest{
		SubscriberID: strings.TrimSpace(r.SubscriberID),
		StartDate:    start,
		EndDate:      end,
		CallIDs:      r.CallIDs,
	}, nil
}

type billResponse struct {
	billing.Bill
	AmountDisplay string `json:"amount_display"`
}

func viewBill(b billing.Bill) billResponse {
	return billResponse{Bill: b, AmountDisplay: billing.FormatAmount(b.Amount)}
}

func (h Handlers) PreviewBill(c *gin.Context) {
	req, ok := bindBillRequest(c)
	if !ok {
		return
	}
	b, err := h.Bills.Preview(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewBill(b))
}

func (h Handlers) CreateBill(c *gin.Context) {
	req, ok := bindBillRequest(c)
	if !ok {
		return
	}
	b, err := h.Bills.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewBill(b))
}

func bindBillRequest(c *gin.Context) (billing.GenerateRequest, bool) {
	var raw billRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "invalid json")
		return billing.GenerateRequest{}, false
	}
	req, err := raw.parse()
	if err != nil {
		badRequest(c, "start_date and end_date must be YYYY-MM-DD")
		return billing.GenerateRequest{}, false
	}
	return req, true
}

func (h Handlers) GetBill(c *gin.Context) {
	b, err := h.Bills.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Other subscribers' bills are reported as missing.
	if !rbac.CanAccessSubscriber(c.Request.Context(), b.SubscriberID) {
		writeError(c, billing.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, viewBill(b))
}

func (h Handlers) ListBills(c *gin.Context) {
	subscriberID, ok := rbac.ScopeSubscriber(c.Request.Context(), c.Query("subscriber_id"))
	if !ok {
		forbidden(c)
		return
	}
	bills, err := h.Bills.ListBySubscriber(c.Request.Context(), subscriberID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, viewBill(b))
	}
	c.JSON(http.StatusOK, gin.H{
		"bills":   out,
		"summary": reporting.SummarizeBills(subscriberID, bills),
	})
}

func (h Handlers) MarkBillPaid(c *gin.Context) {
	b, err := h.Bills.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewBill(b))
}

// --- Bonuses ---

func (h Handlers) CreateBonus(c *gin.Context) {
	var req bonus.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	b, err := h.Bonuses.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h Handlers) GetBonus(c *gin.Context) {
	b, err := h.Bonuses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) ApplyBonus(c *gin.Context) {
	res, err := h.Bonuses.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(statusFor(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- errors ---

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch faults.Kind(err) {
	case faults.ErrValidation:
		return http.StatusBadRequest
	case faults.ErrNotFound:
		return http.StatusNotFound
	case faults.ErrInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	switch faults.Kind(err) {
	case faults.ErrConsistency:
		body = gin.H{"error": "manual reconciliation required", "detail": err.Error()}
	case faults.ErrInfrastructure:
		body = gin.H{"error": "storage unavailable, retry later"}
	case nil:
		body = gin.H{"error": "internal error"}
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
