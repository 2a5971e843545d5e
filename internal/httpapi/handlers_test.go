package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/internal/bonus"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/config"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
	"github.com/tulen-chik/beltelekom-sub000/internal/metrics"
	"github.com/tulen-chik/beltelekom-sub000/internal/rbac"
	"github.com/tulen-chik/beltelekom-sub000/internal/reporting"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
)

func init() { gin.SetMode(gin.TestMode) }

type env struct {
	h     Handlers
	calls *calls.MemoryRepo
	bills *billing.MemoryRepo
	audit *audit.MemoryRepo
}

func mustDate(s string) time.Time {
	d, err := calls.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newEnv(t *testing.T) env {
	t.Helper()
	rate, err := decimal.NewFromString("1.0")
	require.NoError(t, err)

	e := env{
		calls: calls.NewMemoryRepo(),
		bills: billing.NewMemoryRepo(),
		audit: audit.NewMemoryRepo(),
	}
	tariffs := tariff.NewMemoryRepo(tariff.Tariff{
		ZoneCode:     "1",
		Name:         "standard",
		StartDate:    mustDate("2023-01-01"),
		EndDate:      mustDate("2023-12-31"),
		DayRateEnd:   decimal.NewNullDecimal(rate),
		NightRateEnd: decimal.NewNullDecimal(rate.Div(decimal.NewFromInt(2))),
	})
	m := metrics.MustNew(prometheus.NewRegistry())
	auditSvc := audit.NewService(e.audit)

	bills := billing.NewService(e.calls, tariffs, e.bills, billing.Options{Audit: auditSvc, Metrics: m})
	e.h = Handlers{
		Bills:   bills,
		Bonuses: bonus.NewLedger(e.bills, bonus.NewMemoryStore(), bonus.Options{Audit: auditSvc, Metrics: m}),
		Tariffs: tariff.NewResolver(tariffs),
		Reports: reporting.NewService(e.calls, bills),
		Now:     func() time.Time { return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return e
}

func (e env) addCall(id, subscriber, day, start string, dur int) {
	tod, err := calls.ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e.calls.Add(calls.CallRecord{
		ID:              id,
		SubscriberID:    subscriber,
		ZoneCode:        "1",
		CallDate:        mustDate(day),
		StartTime:       tod,
		DurationSeconds: dur,
	})
}

// router mounts the handlers behind a fixed identity instead of a JWT.
func (e env) router(role, subscriberID string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "user-1", role, subscriberID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(RequestContext())
	r.GET("/v1/calls", e.h.ListCalls)
	r.GET("/v1/tariffs/:zone", e.h.GetTariff)
	r.POST("/v1/bills/preview", e.h.PreviewBill)
	r.POST("/v1/bills", e.h.CreateBill)
	r.GET("/v1/bills", e.h.ListBills)
	r.GET("/v1/bills/:id", e.h.GetBill)
	r.POST("/v1/bills/:id/paid", e.h.MarkBillPaid)
	r.POST("/v1/bonuses", e.h.CreateBonus)
	r.GET("/v1/bonuses/:id", e.h.GetBonus)
	r.POST("/v1/bonuses/:id/apply", e.h.ApplyBonus)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type billView struct {
	ID            string          `json:"id"`
	SubscriberID  string          `json:"subscriber_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	Paid          bool            `json:"paid"`
	Details       billing.Details `json:"details"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createBill(t *testing.T, e env, subscriber string) billView {
	t.Helper()
	w := do(t, e.router(rbac.RoleOperator, ""), http.MethodPost, "/v1/bills", gin.H{
		"subscriber_id": subscriber,
		"start_date":    "2023-01-01",
		"end_date":      "2023-01-31",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[billView](t, w)
}

func TestCreateBill_PersistsAndFormats(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 90)
	e.addCall("c2", "SUB-1", "2023-01-06", "23:00:00", 60)

	b := createBill(t, e, "SUB-1")
	assert.NotEmpty(t, b.ID)
	assert.True(t, b.Amount.Equal(decimal.RequireFromString("2")), b.Amount.String())
	assert.Equal(t, "2.00", b.AmountDisplay)
	assert.Equal(t, []string{"c1", "c2"}, b.Details.CallIDs)
	assert.Equal(t, 1, e.bills.Len())
	assert.Len(t, e.audit.EventsOfType(audit.EventTypeBillGenerated), 1)
}

func TestPreviewBill_PersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)

	w := do(t, e.router(rbac.RoleOperator, ""), http.MethodPost, "/v1/bills/preview", gin.H{
		"subscriber_id": "SUB-1",
		"start_date":    "2023-01-01",
		"end_date":      "2023-01-31",
		"call_ids":      []string{"c1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1.00", decode[billView](t, w).AmountDisplay)
	assert.Equal(t, 0, e.bills.Len())
}

func TestCreateBill_Errors(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	e.calls.Add(calls.CallRecord{
		ID: "c9z", SubscriberID: "SUB-1", ZoneCode: "9", CallDate: mustDate("2023-01-07"), DurationSeconds: 60,
	})
	r := e.router(rbac.RoleOperator, "")

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"bad date", gin.H{"subscriber_id": "SUB-1", "start_date": "01/01/2023", "end_date": "2023-01-31"}, http.StatusBadRequest},
		{"inverted range", gin.H{"subscriber_id": "SUB-1", "start_date": "2023-02-01", "end_date": "2023-01-01"}, http.StatusBadRequest},
		{"unknown call", gin.H{"subscriber_id": "SUB-1", "start_date": "2023-01-01", "end_date": "2023-01-31", "call_ids": []string{"nope"}}, http.StatusNotFound},
		{"duplicate call", gin.H{"subscriber_id": "SUB-1", "start_date": "2023-01-01", "end_date": "2023-01-31", "call_ids": []string{"c1", "c1"}}, http.StatusBadRequest},
		{"no tariff", gin.H{"subscriber_id": "SUB-1", "start_date": "2023-01-01", "end_date": "2023-01-31", "call_ids": []string{"c9z"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/v1/bills", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, e.bills.Len())
}

func TestCreateBill_StorageDown(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	e.bills.Err = errors.New("connection refused")

	w := do(t, e.router(rbac.RoleOperator, ""), http.MethodPost, "/v1/bills", gin.H{
		"subscriber_id": "SUB-1", "start_date": "2023-01-01", "end_date": "2023-01-31",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestGetBill_ScopedToSubscriber(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	b := createBill(t, e, "SUB-1")

	w := do(t, e.router(rbac.RoleSubscriber, "SUB-1"), http.MethodGet, "/v1/bills/"+b.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, e.router(rbac.RoleSubscriber, "SUB-2"), http.MethodGet, "/v1/bills/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, e.router(rbac.RoleOperator, ""), http.MethodGet, "/v1/bills/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListBills_WithSummary(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	b := createBill(t, e, "SUB-1")

	w := do(t, e.router(rbac.RoleOperator, ""), http.MethodPost, "/v1/bills/"+b.ID+"/paid", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[billView](t, w).Paid)

	w = do(t, e.router(rbac.RoleSubscriber, "SUB-1"), http.MethodGet, "/v1/bills", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Bills   []billView              `json:"bills"`
		Summary reporting.BillsSummary `json:"summary"`
	}](t, w)
	require.Len(t, got.Bills, 1)
	assert.Equal(t, 1, got.Summary.PaidBills)

	w = do(t, e.router(rbac.RoleSubscriber, "SUB-1"), http.MethodGet, "/v1/bills?subscriber_id=SUB-2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListCalls(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	e.addCall("c2", "SUB-1", "2023-01-05", "22:30:00", 30)
	e.addCall("c3", "SUB-1", "2023-02-05", "10:00:00", 60)

	w := do(t, e.router(rbac.RoleSubscriber, "SUB-1"), http.MethodGet, "/v1/calls?from=2023-01-01&to=2023-01-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Calls   []calls.CallRecord     `json:"calls"`
		Summary reporting.CallsSummary `json:"summary"`
	}](t, w)
	assert.Len(t, got.Calls, 2)
	assert.Equal(t, 2, got.Summary.TotalCalls)
	assert.Equal(t, 60, got.Summary.DaySeconds)
	assert.Equal(t, 30, got.Summary.NightSeconds)

	w = do(t, e.router(rbac.RoleSubscriber, "SUB-1"), http.MethodGet, "/v1/calls?subscriber_id=SUB-2&from=2023-01-01&to=2023-01-31", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, e.router(rbac.RoleOperator, ""), http.MethodGet, "/v1/calls?subscriber_id=SUB-1&from=bad&to=2023-01-31", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTariff(t *testing.T) {
	e := newEnv(t)
	r := e.router(rbac.RoleOperator, "")

	w := do(t, r, http.MethodGet, "/v1/tariffs/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "standard", decode[tariff.Tariff](t, w).Name)

	w = do(t, r, http.MethodGet, "/v1/tariffs/1?on=2024-01-01", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/v1/tariffs/1?on=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBonusLifecycle(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 90)
	b := createBill(t, e, "SUB-1")
	r := e.router(rbac.RoleOperator, "")

	w := do(t, r, http.MethodPost, "/v1/bonuses", gin.H{
		"bill_id": b.ID, "subscriber_id": "SUB-1", "amount": "0.5", "reason": "outage credit",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[bonus.Bonus](t, w)
	assert.False(t, created.Applied)

	w = do(t, r, http.MethodPost, "/v1/bonuses/"+created.ID+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[bonus.ApplyResult](t, w)
	assert.True(t, res.Success)
	assert.True(t, res.OldAmount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, res.NewAmount.Equal(decimal.RequireFromString("1")))

	w = do(t, r, http.MethodPost, "/v1/bonuses/"+created.ID+"/apply", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	again := decode[bonus.ApplyResult](t, w)
	assert.False(t, again.Success)
	assert.NotEmpty(t, again.Message)

	w = do(t, r, http.MethodGet, "/v1/bonuses/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[bonus.Bonus](t, w).Applied)

	w = do(t, r, http.MethodGet, "/v1/bills/"+b.ID, nil)
	assert.Equal(t, "1.00", decode[billView](t, w).AmountDisplay)
}

func TestBonus_Rejections(t *testing.T) {
	e := newEnv(t)
	e.addCall("c1", "SUB-1", "2023-01-05", "10:00:00", 60)
	b := createBill(t, e, "SUB-1")
	r := e.router(rbac.RoleOperator, "")

	w := do(t, r, http.MethodPost, "/v1/bonuses", gin.H{
		"bill_id": b.ID, "subscriber_id": "SUB-1", "amount": "-1", "reason": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/v1/bonuses", gin.H{
		"bill_id": "missing", "subscriber_id": "SUB-1", "amount": "1", "reason": "x",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/v1/bonuses", gin.H{
		"bill_id": b.ID, "subscriber_id": "SUB-1", "amount": "5", "reason": "too generous",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	big := decode[bonus.Bonus](t, w)

	w = do(t, r, http.MethodPost, "/v1/bonuses/"+big.ID+"/apply", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[bonus.ApplyResult](t, w).Message, "exceeds")

	w = do(t, r, http.MethodPost, "/v1/bonuses/missing/apply", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteError_Kinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
		body string
	}{
		{fmt.Errorf("x: %w", faults.ErrValidation), http.StatusBadRequest, "x: validation failed"},
		{fmt.Errorf("x: %w", faults.ErrNotFound), http.StatusNotFound, "x: not found"},
		{faults.Infrastructure("get bill", errors.New("timeout")), http.StatusServiceUnavailable, "storage unavailable"},
		{bonus.ErrReconciliationRequired, http.StatusInternalServerError, "manual reconciliation required"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), tc.body)
	}
}

func TestLogin(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	creds, err := auth.NewCredentials([]config.AuthUser{
		{Username: "ivan", Role: rbac.RoleSubscriber, PasswordHash: string(h), SubscriberID: "SUB-1"},
	}, rbac.IsKnownRole, rbac.RoleSubscriber)
	require.NoError(t, err)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	handlers := Handlers{Auth: auth.NewAuthenticator(creds, auth.NewThrottle(auth.NewMemoryAttemptStore(), 2, time.Minute), m, nil)}
	r := gin.New()
	r.POST("/v1/auth/login", handlers.Login)
	r.POST("/v1/auth/refresh", handlers.Refresh)

	w := do(t, r, http.MethodPost, "/v1/auth/login", gin.H{"username": "ivan", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]string](t, w)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "SUB-1", body["subscriber_id"])

	w = do(t, r, http.MethodPost, "/v1/auth/login", gin.H{"username": "ivan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/v1/auth/login", gin.H{"username": "ivan", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, r, http.MethodPost, "/v1/auth/login", gin.H{"username": "ivan", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, r, http.MethodPost, "/v1/auth/login", gin.H{"username": "ivan", "password": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Refresh is not throttled by failed password attempts.
	w = do(t, r, http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": body["refresh_token"]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, w)["access_token"])

	w = do(t, r, http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": body["access_token"]})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
