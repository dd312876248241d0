package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/config"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/emergency"
	"github.com/precinct-ops/duty-roster/backend/internal/locker"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/pto"
	"github.com/precinct-ops/duty-roster/backend/internal/settings"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/precinct-ops/duty-roster/backend/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var monday = time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC)

type testServer struct {
	handler  *Handler
	store    *memory.Memory
	settings *settings.Static
	audit    *audit.Memory
	shift    *domain.ShiftType
	officer  *domain.Officer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret

	s := memory.New()
	src := settings.NewStatic(true)
	rec := audit.NewMemory()
	ledger := partnership.NewLedger(func() time.Time { return monday })
	lk := locker.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := NewHandler(cfg, s, Services{
		Ledger:    ledger,
		PTO:       pto.NewManager(s, ledger, lk, src, rec, logger),
		Emergency: emergency.NewResolver(s, ledger, lk, rec, logger),
		Settings:  src,
		Audit:     rec,
	})
	require.NoError(t, err)
	h.RegisterRoutes()

	ts := &testServer{handler: h, store: s, settings: src, audit: rec}
	ts.shift = s.AddShiftType(&domain.ShiftType{Name: "白班", StartTime: "07:00", EndTime: "15:00"})
	hired := time.Date(2019, time.March, 1, 0, 0, 0, 0, time.UTC)
	ts.officer = s.AddOfficer(&domain.Officer{
		FullName:      "Ann Baker",
		BadgeNumber:   "1001",
		Rank:          domain.RankOfficer,
		HireDate:      &hired,
		VacationHours: decimal.NewFromInt(16),
		IsActive:      true,
	})
	return ts
}

func signToken(t *testing.T, secret string, claims ActorClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() ActorClaims {
	return ActorClaims{
		Name: "sgt.lee",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) (int, response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.Mux.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestActor(t *testing.T) {
	ts := newTestServer(t)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noName := ActorClaims{}

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"未携带令牌", "", "用户未登录"},
		{"签名错误", signToken(t, "other-secret", validClaims()), "无效的令牌"},
		{"令牌过期", signToken(t, testSecret, expired), "无效的令牌"},
		{"缺少身份", signToken(t, testSecret, noName), "无效的令牌"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := ts.do(t, http.MethodGet, "/settings/pto-balances", nil, tt.token)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}

	t.Run("从 cookie 读取令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/settings/pto-balances", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: signToken(t, testSecret, validClaims())})
		rec := httptest.NewRecorder()
		ts.handler.Mux.ServeHTTP(rec, req)

		var resp response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("Authorization 头格式错误", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/settings/pto-balances", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		ts.handler.Mux.ServeHTTP(rec, req)

		var resp response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "无效的 Authorization 头", resp.Message)
	})
}

func ptoBody(ts *testServer, fullShift bool) map[string]any {
	return map[string]any{
		"officerID":   ts.officer.ID,
		"date":        "2024-06-17",
		"shiftTypeID": ts.shift.ID,
		"leaveType":   "vacation",
		"fullShift":   fullShift,
	}
}

func TestAssignPTO(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, validClaims())

	status, resp := ts.do(t, http.MethodPost, "/pto", ptoBody(ts, true), token)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success, resp.Message)

	var result pto.AssignResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, decimal.NewFromInt(8).Equal(result.Exception.Hours))
	assert.True(t, decimal.NewFromInt(8).Equal(*result.Balance))

	entries := ts.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "sgt.lee", entries[0].Actor)

	// 再次登记同一班次会先退回原扣除
	_, resp = ts.do(t, http.MethodPost, "/pto", ptoBody(ts, true), token)
	require.True(t, resp.Success, resp.Message)

	status, resp = ts.do(t, http.MethodPost, "/pto/remove", map[string]any{
		"officerID":   ts.officer.ID,
		"date":        "2024-06-17",
		"shiftTypeID": ts.shift.ID,
	}, token)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success, resp.Message)

	got, err := ts.store.GetOfficer(context.Background(), ts.officer.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(16).Equal(got.VacationHours))
}

func TestAssignPTO_Errors(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, validClaims())

	t.Run("缺少必填字段", func(t *testing.T) {
		body := ptoBody(ts, true)
		delete(body, "fullShift")
		status, resp := ts.do(t, http.MethodPost, "/pto", body, token)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("日期格式错误", func(t *testing.T) {
		body := ptoBody(ts, true)
		body["date"] = "17/06/2024"
		_, resp := ts.do(t, http.MethodPost, "/pto", body, token)
		assert.False(t, resp.Success)
		assert.Equal(t, "日期格式应为 YYYY-MM-DD", resp.Message)
	})

	t.Run("部分时段缺少起止时间", func(t *testing.T) {
		_, resp := ts.do(t, http.MethodPost, "/pto", ptoBody(ts, false), token)
		assert.False(t, resp.Success)
		assert.Equal(t, "时间范围无效", resp.Message)

		var data ErrorData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, domain.KindValidation, data.Kind)
		assert.Equal(t, "startTime", data.Field)
	})

	t.Run("存储拒绝写入", func(t *testing.T) {
		ts.store.SetFault("UpsertAssignment", errors.New("unique_violation"))
		defer ts.store.SetFault("UpsertAssignment", nil)

		body := ptoBody(ts, true)
		body["date"] = "2024-06-21"
		status, resp := ts.do(t, http.MethodPost, "/pto", body, token)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, resp.Success)
		assert.Equal(t, "数据写入失败，操作已中止", resp.Message)

		var data ErrorData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, domain.KindConsistency, data.Kind)
		assert.Equal(t, "2024-06-21", data.Date)
	})

	t.Run("余额不足", func(t *testing.T) {
		_, resp := ts.do(t, http.MethodPost, "/pto", ptoBody(ts, true), token)
		require.True(t, resp.Success)
		_, resp = ts.do(t, http.MethodPost, "/pto", map[string]any{
			"officerID":   ts.officer.ID,
			"date":        "2024-06-18",
			"shiftTypeID": ts.shift.ID,
			"leaveType":   "vacation",
			"fullShift":   true,
		}, token)
		require.True(t, resp.Success)
		status, resp := ts.do(t, http.MethodPost, "/pto", map[string]any{
			"officerID":   ts.officer.ID,
			"date":        "2024-06-19",
			"shiftTypeID": ts.shift.ID,
			"leaveType":   "vacation",
			"fullShift":   true,
		}, token)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, resp.Success)
		assert.Equal(t, "假期余额不足", resp.Message)

		var data ErrorData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, domain.KindBusinessRule, data.Kind)
		assert.Equal(t, ts.officer.ID, data.OfficerID)
		assert.Equal(t, "2024-06-19", data.Date)
		assert.Equal(t, "leaveType", data.Field)
	})

	t.Run("存储暂时不可用", func(t *testing.T) {
		ts.store.SetFault("GetOfficer", store.ErrTransient)
		defer ts.store.SetFault("GetOfficer", nil)

		body := ptoBody(ts, true)
		body["date"] = "2024-06-20"
		status, resp := ts.do(t, http.MethodPost, "/pto", body, token)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.False(t, resp.Success)
		assert.Equal(t, "存储暂时不可用，请稍后重试", resp.Message)
	})
}

func TestPTOBalancesSetting(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, validClaims())

	_, resp := ts.do(t, http.MethodPut, "/settings/pto-balances", map[string]any{"enabled": false}, token)
	require.True(t, resp.Success, resp.Message)

	enabled, err := ts.settings.PTOBalancesEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)

	_, resp = ts.do(t, http.MethodGet, "/settings/pto-balances", nil, token)
	require.True(t, resp.Success)
	var setting ptoBalancesSetting
	require.NoError(t, json.Unmarshal(resp.Data, &setting))
	assert.False(t, setting.Enabled)

	entries := ts.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditSettingsChanged, entries[0].ActionType)

	_, resp = ts.do(t, http.MethodPut, "/settings/pto-balances", map[string]any{}, token)
	assert.False(t, resp.Success)
}

func TestOfficerRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, validClaims())

	_, resp := ts.do(t, http.MethodGet, "/officers/roster?asOf=2024-06-17", nil, token)
	require.True(t, resp.Success, resp.Message)
	var roster []struct {
		Officer       *domain.Officer `json:"officer"`
		ServiceCredit decimal.Decimal `json:"serviceCredit"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, ts.officer.ID, roster[0].Officer.ID)

	_, resp = ts.do(t, http.MethodGet, "/officers/999/partnership?date=2024-06-17&shiftTypeID=1", nil, token)
	assert.False(t, resp.Success)
	assert.Equal(t, "警员不存在", resp.Message)

	_, resp = ts.do(t, http.MethodGet, "/officers/abc/service-credit", nil, token)
	assert.Equal(t, "警员ID无效", resp.Message)

	path := "/officers/" + strconv.FormatInt(ts.officer.ID, 10) + "/partnership?date=2024-06-17&shiftTypeID=" + strconv.FormatInt(ts.shift.ID, 10)
	_, resp = ts.do(t, http.MethodGet, path, nil, token)
	require.True(t, resp.Success, resp.Message)
	var st partnership.Status
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, partnership.Unpartnered, st.State)

	_, resp = ts.do(t, http.MethodGet, "/officers/"+strconv.FormatInt(ts.officer.ID, 10)+"/partnership", nil, token)
	assert.Equal(t, "缺少参数 date", resp.Message)
}
