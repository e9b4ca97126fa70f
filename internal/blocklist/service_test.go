package blocklist

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/models"
)

type fakeStore struct {
	blocks   map[string]*models.BlockedIP
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: make(map[string]*models.BlockedIP)}
}

func (f *fakeStore) UpsertBlockedIP(b *models.BlockedIP) error {
	if f.failWith != nil {
		return f.failWith
	}
	cp := *b
	f.blocks[b.IPAddress] = &cp
	return nil
}

func (f *fakeStore) GetBlockedIP(ip string) (*models.BlockedIP, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	b, ok := f.blocks[ip]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) DeleteBlockedIP(ip string) error {
	if f.failWith != nil {
		return f.failWith
	}
	delete(f.blocks, ip)
	return nil
}

func (f *fakeStore) ListBlockedIPs(limit, offset int) ([]models.BlockedIP, int, error) {
	var all []models.BlockedIP
	for _, b := range f.blocks {
		all = append(all, *b)
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func newTestService(store Store) *Service {
	return NewService(store, events.NewBus(), zap.NewNop())
}

func TestBlockAndIsBlocked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	if _, err := svc.Block("203.0.113.7", "admin-1", "abuse", nil); err != nil {
		t.Fatalf("block: %v", err)
	}

	blocked, err := svc.IsBlocked("203.0.113.7")
	if err != nil || !blocked {
		t.Fatalf("expected blocked, got blocked=%v err=%v", blocked, err)
	}

	blocked, err = svc.IsBlocked("203.0.113.8")
	if err != nil || blocked {
		t.Fatalf("unlisted address must not be blocked, got blocked=%v err=%v", blocked, err)
	}
}

func TestBlockUpsert(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	if _, err := svc.Block("203.0.113.7", "admin-1", "abuse", nil); err != nil {
		t.Fatalf("block: %v", err)
	}

	expiry := time.Now().Add(time.Hour)
	if _, err := svc.Block("203.0.113.7", "admin-2", "repeat offender", &expiry); err != nil {
		t.Fatalf("re-block must upsert, got %v", err)
	}

	got, err := svc.Get("203.0.113.7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != "repeat offender" || got.BlockedBy != "admin-2" || got.ExpiresAt == nil {
		t.Fatalf("upsert did not refresh fields: %+v", got)
	}
}

func TestExpiredBlockInactiveButRetained(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	past := time.Now().Add(-time.Minute)
	if _, err := svc.Block("198.51.100.9", "admin-1", "temp", &past); err != nil {
		t.Fatalf("block: %v", err)
	}

	blocked, err := svc.IsBlocked("198.51.100.9")
	if err != nil || blocked {
		t.Fatalf("expired block must not match, got blocked=%v err=%v", blocked, err)
	}

	// The record itself stays in storage for audit.
	got, err := svc.Get("198.51.100.9")
	if err != nil || got == nil {
		t.Fatalf("expired record must remain retrievable: %v", err)
	}
}

func TestUnblock(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	if _, err := svc.Block("203.0.113.7", "admin-1", "abuse", nil); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := svc.Unblock("203.0.113.7"); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	blocked, err := svc.IsBlocked("203.0.113.7")
	if err != nil || blocked {
		t.Fatalf("unblocked address must pass, got blocked=%v err=%v", blocked, err)
	}
	if _, err := svc.Get("203.0.113.7"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after unblock, got %v", err)
	}
}

func TestIsBlockedStoreFault(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	store.failWith = errors.New("connection reset")
	_, err := svc.IsBlocked("203.0.113.7")
	if err == nil {
		t.Fatal("store fault must propagate so the caller can choose its posture")
	}
}

func TestListPagination(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if _, err := svc.Block(ip, "admin-1", "sweep", nil); err != nil {
			t.Fatalf("block %s: %v", ip, err)
		}
	}

	page, total, err := svc.List(1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("expected total=3 page-len=2, got total=%d len=%d", total, len(page))
	}

	page, total, err = svc.List(2, 2)
	if err != nil || total != 3 || len(page) != 1 {
		t.Fatalf("second page: total=%d len=%d err=%v", total, len(page), err)
	}

	// Out-of-range inputs fall back to sane defaults.
	page, total, err = svc.List(0, -5)
	if err != nil || total != 3 || len(page) != 3 {
		t.Fatalf("defaulted page: total=%d len=%d err=%v", total, len(page), err)
	}
}
