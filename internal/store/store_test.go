package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/victorgomez09/keygate/internal/models"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "keygate.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLicense(key string) *models.License {
	return &models.License{
		ID:           "lic-" + key,
		Key:          key,
		Type:         "standard",
		UserID:       "user-1",
		AdminID:      "admin-1",
		HWIDs:        []string{},
		RequestLimit: 5,
		ValidUntil:   time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
}

func TestLicenseRoundTrip(t *testing.T) {
	db := newTestDB(t)

	lic := testLicense("KG-AAAA")
	lic.HWIDs = []string{"DEV-A", "DEV-B"}
	if err := db.CreateLicense(lic); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetLicenseByKey("KG-AAAA")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if got.ID != lic.ID || got.RequestLimit != 5 || got.RequestCount != 0 {
		t.Fatalf("unexpected license: %+v", got)
	}
	if len(got.HWIDs) != 2 || got.HWIDs[0] != "DEV-A" {
		t.Fatalf("hwids not preserved: %v", got.HWIDs)
	}

	byID, err := db.GetLicenseByID(lic.ID)
	if err != nil || byID.Key != "KG-AAAA" {
		t.Fatalf("get by id: %v %+v", err, byID)
	}

	byUser, err := db.GetLicensesByUserID("user-1")
	if err != nil || len(byUser) != 1 {
		t.Fatalf("get by user: %v %d", err, len(byUser))
	}
}

func TestLicenseUniqueKey(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateLicense(testLicense("KG-DUP")); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := testLicense("KG-DUP")
	dup.ID = "other-id"
	if err := db.CreateLicense(dup); err == nil {
		t.Fatal("expected unique constraint violation on duplicate key")
	}
}

func TestLicenseGetMissing(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetLicenseByKey("KG-NOPE")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestIncrementLicenseUsageReturnsPostIncrement(t *testing.T) {
	db := newTestDB(t)

	lic := testLicense("KG-INC")
	if err := db.CreateLicense(lic); err != nil {
		t.Fatalf("create: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := db.IncrementLicenseUsage(lic.ID, "198.51.100.9")
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got.RequestCount != want {
			t.Fatalf("expected post-increment count %d, got %d", want, got.RequestCount)
		}
		if got.LastUsedIP != "198.51.100.9" {
			t.Fatalf("last_used_ip not recorded: %q", got.LastUsedIP)
		}
	}
}

func TestIncrementLicenseUsageConcurrent(t *testing.T) {
	db := newTestDB(t)

	lic := testLicense("KG-RACE")
	if err := db.CreateLicense(lic); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 20
	counts := make(chan int, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			got, err := db.IncrementLicenseUsage(lic.ID, "203.0.113.1")
			if err != nil {
				errs <- err
				return
			}
			counts <- got.RequestCount
		}()
	}

	seen := make(map[int]bool)
	for i := 0; i < workers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent increment: %v", err)
		case n := <-counts:
			if seen[n] {
				t.Fatalf("two workers observed the same post-increment count %d", n)
			}
			seen[n] = true
		}
	}

	final, err := db.GetLicenseByID(lic.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.RequestCount != workers {
		t.Fatalf("expected final count %d, got %d", workers, final.RequestCount)
	}
}

func TestUpdateAndDeleteLicense(t *testing.T) {
	db := newTestDB(t)

	lic := testLicense("KG-UPD")
	if err := db.CreateLicense(lic); err != nil {
		t.Fatalf("create: %v", err)
	}

	lic.HWIDs = []string{"DEV-A"}
	lic.RequestLimit = 99
	if err := db.UpdateLicense(lic); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := db.GetLicenseByID(lic.ID)
	if err != nil || got.RequestLimit != 99 || len(got.HWIDs) != 1 {
		t.Fatalf("update not persisted: %v %+v", err, got)
	}

	if err := db.DeleteLicense(lic.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.DeleteLicense(lic.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
}

func TestBlockedIPUpsert(t *testing.T) {
	db := newTestDB(t)

	first := &models.BlockedIP{
		IPAddress: "203.0.113.7",
		Reason:    "abuse",
		BlockedBy: "admin-1",
		BlockedAt: time.Now(),
	}
	if err := db.UpsertBlockedIP(first); err != nil {
		t.Fatalf("block: %v", err)
	}

	expiry := time.Now().Add(time.Hour)
	second := &models.BlockedIP{
		IPAddress: "203.0.113.7",
		Reason:    "repeat offender",
		BlockedBy: "admin-2",
		BlockedAt: time.Now(),
		ExpiresAt: &expiry,
	}
	if err := db.UpsertBlockedIP(second); err != nil {
		t.Fatalf("re-block should upsert, got %v", err)
	}

	got, err := db.GetBlockedIP("203.0.113.7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != "repeat offender" || got.BlockedBy != "admin-2" || got.ExpiresAt == nil {
		t.Fatalf("upsert did not refresh fields: %+v", got)
	}

	_, total, err := db.ListBlockedIPs(10, 0)
	if err != nil || total != 1 {
		t.Fatalf("expected a single active block row, got total=%d err=%v", total, err)
	}
}

func TestBlockedIPDelete(t *testing.T) {
	db := newTestDB(t)

	b := &models.BlockedIP{IPAddress: "198.51.100.2", Reason: "spam", BlockedBy: "a", BlockedAt: time.Now()}
	if err := db.UpsertBlockedIP(b); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := db.DeleteBlockedIP("198.51.100.2"); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	_, err := db.GetBlockedIP("198.51.100.2")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after unblock, got %v", err)
	}
}

func TestFailedAttemptCount(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.RecordFailedAttempt("192.0.2.4"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := db.RecordFailedAttempt("192.0.2.5"); err != nil {
		t.Fatalf("record: %v", err)
	}

	count, err := db.CountFailedAttempts("192.0.2.4", time.Now().Add(-time.Minute))
	if err != nil || count != 3 {
		t.Fatalf("expected 3 attempts, got %d err=%v", count, err)
	}

	count, err = db.CountFailedAttempts("192.0.2.4", time.Now().Add(time.Minute))
	if err != nil || count != 0 {
		t.Fatalf("expected 0 attempts after cutoff, got %d err=%v", count, err)
	}
}

func TestTokenRevocation(t *testing.T) {
	db := newTestDB(t)

	user := &models.User{
		Username:  "ops",
		Password:  "hash",
		Role:      models.RoleAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.CreateUser(user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	token := &models.Token{
		UserID:     user.ID,
		Token:      "jwt-string",
		JTI:        "jti-1",
		Role:       models.RoleAdmin,
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
		LastUsedAt: time.Now(),
		ClientIP:   "127.0.0.1",
		UserAgent:  "test",
	}
	if err := db.CreateToken(token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	got, err := db.GetTokenByJTI("jti-1")
	if err != nil || got.RevokedAt != nil {
		t.Fatalf("fresh token should not be revoked: %v %+v", err, got)
	}

	if err := db.RevokeToken("jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	got, err = db.GetTokenByJTI("jti-1")
	if err != nil || got.RevokedAt == nil {
		t.Fatalf("token should be revoked: %v %+v", err, got)
	}
}
