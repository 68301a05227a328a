package receipts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/djangamane/sba-ISM/config"
	"github.com/djangamane/sba-ISM/entitlements"
	"github.com/djangamane/sba-ISM/ledger"
	"github.com/djangamane/sba-ISM/testutils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

const testWebhookSecret = "rc-test-secret"

func newWebhookRouter(gormDB *gorm.DB, secret string, now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{RevenueCatWebhookSecret: secret, Mode: config.ModeStrict}
	ldg := ledger.New(gormDB)
	ent := entitlements.New(gormDB, ldg, config.ModeStrict)

	h := New(cfg, ent, ldg)
	h.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/api/v1/receipts/webhook", h.HandleWebhook)
	return r
}

func postWebhook(r *gin.Engine, secret string, payload map[string]interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/receipts/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Authorization", secret)
	}
	r.ServeHTTP(w, req)
	return w
}

func expectEventNotSeen(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT count\(\*\) FROM "premium_events"`).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(0))
}

func expectProfileUpsert(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "profiles" (.+) ON CONFLICT (.+) DO UPDATE SET`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()
}

func expectEventInsert(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "premium_events" (.+) ON CONFLICT (.+) DO NOTHING`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()
}

func TestHandleWebhook_SecretNotConfigured(t *testing.T) {
	r := newWebhookRouter(nil, "", time.Now())

	w := postWebhook(r, "", map[string]interface{}{})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleWebhook_InvalidAuthorization(t *testing.T) {
	r := newWebhookRouter(nil, testWebhookSecret, time.Now())

	w := postWebhook(r, "wrong-secret", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_MissingAuthorizationHeader(t *testing.T) {
	r := newWebhookRouter(nil, testWebhookSecret, time.Now())

	w := postWebhook(r, "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_MissingEventID(t *testing.T) {
	gormDB, _, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	r := newWebhookRouter(gormDB, testWebhookSecret, time.Now())

	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{"app_user_id": uuid.NewString()},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["processed"])
	assert.Equal(t, "missing_event_id", body["reason"])
}

func TestHandleWebhook_MissingAppUserID(t *testing.T) {
	gormDB, _, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	r := newWebhookRouter(gormDB, testWebhookSecret, time.Now())

	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{"id": "evt_1", "type": "INITIAL_PURCHASE"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "missing_app_user_id", body["reason"])
}

func TestHandleWebhook_DuplicateEventIsNoOp(t *testing.T) {
	gormDB, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	r := newWebhookRouter(gormDB, testWebhookSecret, time.Now())

	// Already in the ledger. No profile write must happen.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "premium_events"`).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(1))

	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{
			"id":          "evt_dup",
			"type":        "RENEWAL",
			"app_user_id": uuid.NewString(),
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["processed"])
	assert.Equal(t, "duplicate_event", body["reason"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_ActiveEntitlementReconciled(t *testing.T) {
	gormDB, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	r := newWebhookRouter(gormDB, testWebhookSecret, now)

	expectEventNotSeen(mock)
	expectProfileUpsert(mock)
	expectEventInsert(mock)

	expiresMs := now.Add(30 * 24 * time.Hour).UnixMilli()
	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{
			"id":            "evt_active",
			"type":          "INITIAL_PURCHASE",
			"app_user_id":   uuid.NewString(),
			"expires_at_ms": expiresMs,
		},
		"subscriber": map[string]interface{}{
			"entitlements": map[string]interface{}{
				"premium": map[string]interface{}{"is_active": true},
			},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["processed"])
	assert.Equal(t, true, body["isActive"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_ExpiredCanonicalWinsOverActiveFallback(t *testing.T) {
	gormDB, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	r := newWebhookRouter(gormDB, testWebhookSecret, now)

	expectEventNotSeen(mock)
	expectProfileUpsert(mock)
	expectEventInsert(mock)

	// premium_monthly is canonical and wins even though it expired; the
	// still-active non-canonical entry is never consulted.
	expired := now.Add(-time.Hour).Format(time.RFC3339)
	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{
			"id":          "evt_precedence",
			"type":        "EXPIRATION",
			"app_user_id": uuid.NewString(),
		},
		"subscriber": map[string]interface{}{
			"entitlements": map[string]interface{}{
				"premium_monthly": map[string]interface{}{
					"is_active":    false,
					"expires_date": expired,
				},
				"lifetime_special": map[string]interface{}{"is_active": true},
			},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["processed"])
	assert.Equal(t, false, body["isActive"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_NoEntitlementsDeactivates(t *testing.T) {
	gormDB, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	r := newWebhookRouter(gormDB, testWebhookSecret, now)

	expectEventNotSeen(mock)
	expectProfileUpsert(mock)
	expectEventInsert(mock)

	w := postWebhook(r, testWebhookSecret, map[string]interface{}{
		"event": map[string]interface{}{
			"id":          "evt_expired",
			"type":        "EXPIRATION",
			"app_user_id": uuid.NewString(),
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["isActive"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectEntitlement_CanonicalOrder(t *testing.T) {
	monthly := &receiptEntitlement{ProductIdentifier: "monthly"}
	other := &receiptEntitlement{ProductIdentifier: "other", IsActive: true}

	got := selectEntitlement(map[string]*receiptEntitlement{
		"premium_monthly": monthly,
		"zzz_active":      other,
	})
	assert.Same(t, monthly, got)
}

func TestSelectEntitlement_ActiveFallbackIsDeterministic(t *testing.T) {
	first := &receiptEntitlement{ProductIdentifier: "aaa", IsActive: true}
	second := &receiptEntitlement{ProductIdentifier: "bbb", IsActive: true}

	for i := 0; i < 10; i++ {
		got := selectEntitlement(map[string]*receiptEntitlement{
			"bbb": second,
			"aaa": first,
		})
		assert.Same(t, first, got, "iteration %d", i)
	}
}

func TestSelectEntitlement_Empty(t *testing.T) {
	assert.Nil(t, selectEntitlement(nil))
	assert.Nil(t, selectEntitlement(map[string]*receiptEntitlement{}))
}

func TestDetermineExpiry_Priority(t *testing.T) {
	eventMs := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	entlDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	grace := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	entlStr := entlDate.Format(time.RFC3339)
	graceStr := grace.Format(time.RFC3339)

	// Event-level millis beat the entitlement dates.
	got := determineExpiry(
		&receiptEvent{ExpiresAtMs: eventMs.UnixMilli()},
		&receiptEntitlement{ExpiresDate: &entlStr, GracePeriodExpiresDate: &graceStr},
	)
	assert.NotNil(t, got)
	assert.Equal(t, eventMs.UnixMilli(), got.UnixMilli())

	// Without millis, expires_date wins over the grace period.
	got = determineExpiry(
		&receiptEvent{},
		&receiptEntitlement{ExpiresDate: &entlStr, GracePeriodExpiresDate: &graceStr},
	)
	assert.NotNil(t, got)
	assert.True(t, got.Equal(entlDate))

	// Grace period is the last resort.
	got = determineExpiry(&receiptEvent{}, &receiptEntitlement{GracePeriodExpiresDate: &graceStr})
	assert.NotNil(t, got)
	assert.True(t, got.Equal(grace))

	assert.Nil(t, determineExpiry(&receiptEvent{}, nil))
}

func TestDetermineExpiry_LegacyExpirationField(t *testing.T) {
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	got := determineExpiry(&receiptEvent{ExpirationAtMs: at.UnixMilli()}, nil)
	assert.NotNil(t, got)
	assert.Equal(t, at.UnixMilli(), got.UnixMilli())
}

func TestDetermineTrialEnd(t *testing.T) {
	expiry := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	explicit := time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC)
	explicitStr := explicit.Format(time.RFC3339)

	got := determineTrialEnd(&receiptEvent{PeriodType: "NORMAL"}, &receiptEntitlement{TrialEndsAt: &explicitStr}, &expiry)
	assert.NotNil(t, got)
	assert.True(t, got.Equal(explicit))

	for _, periodType := range []string{"TRIAL", "trial", "INTRO"} {
		got = determineTrialEnd(&receiptEvent{PeriodType: periodType}, nil, &expiry)
		if assert.NotNil(t, got, fmt.Sprintf("period type %s", periodType)) {
			assert.True(t, got.Equal(expiry))
		}
	}

	assert.Nil(t, determineTrialEnd(&receiptEvent{PeriodType: "NORMAL"}, nil, &expiry))
}
