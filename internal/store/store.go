package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/victorgomez09/keygate/internal/models"
)

// Schema for the SQLite database backing the gating core: licenses,
// blocked IPs, failed attempts and the admin users/tokens used by the
// authentication path.
const schema = `
CREATE TABLE IF NOT EXISTS licenses (
    id TEXT PRIMARY KEY,
    license_key TEXT UNIQUE NOT NULL,    -- Credential presented by clients.
    type TEXT NOT NULL,
    user_id TEXT NOT NULL,
    admin_id TEXT NOT NULL,              -- Issuing administrator.
    hwids TEXT NOT NULL DEFAULT '[]',    -- JSON array of bound device ids.
    request_limit INTEGER NOT NULL,
    request_count INTEGER NOT NULL DEFAULT 0,
    valid_until DATETIME NOT NULL,
    last_used_ip TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blocked_ips (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ip_address TEXT UNIQUE NOT NULL,     -- One active block per address.
    reason TEXT NOT NULL,
    blocked_by TEXT NOT NULL,
    blocked_at DATETIME NOT NULL,
    expires_at DATETIME                  -- NULL means permanent.
);

CREATE TABLE IF NOT EXISTS failed_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ip_address TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password TEXT NOT NULL,              -- bcrypt hash.
    role TEXT NOT NULL,
    last_login_at DATETIME,
    last_login_ip TEXT NOT NULL DEFAULT '',
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    locked_until DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    token TEXT UNIQUE NOT NULL,
    jti TEXT UNIQUE NOT NULL,
    role TEXT NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    last_used_at DATETIME NOT NULL,
    revoked_at DATETIME,
    client_ip TEXT NOT NULL,
    user_agent TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE INDEX IF NOT EXISTS idx_licenses_user_id ON licenses(user_id);
CREATE INDEX IF NOT EXISTS idx_licenses_key ON licenses(license_key);
CREATE INDEX IF NOT EXISTS idx_blocked_ips_address ON blocked_ips(ip_address);
CREATE INDEX IF NOT EXISTS idx_failed_attempts_ip ON failed_attempts(ip_address);
CREATE INDEX IF NOT EXISTS idx_tokens_jti ON tokens(jti);
CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens(user_id);
`

type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at dbPath, enables foreign
// keys and ensures the schema exists.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// under concurrent usage increments.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// License methods

func (s *SQLiteDB) CreateLicense(lic *models.License) error {
	hwids, err := json.Marshal(lic.HWIDs)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
        INSERT INTO licenses (
            id, license_key, type, user_id, admin_id, hwids,
            request_limit, request_count, valid_until, last_used_ip, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, lic.ID, lic.Key, lic.Type, lic.UserID, lic.AdminID, string(hwids),
		lic.RequestLimit, lic.RequestCount, lic.ValidUntil, lic.LastUsedIP, lic.CreatedAt)
	return err
}

func (s *SQLiteDB) scanLicense(row *sql.Row) (*models.License, error) {
	var lic models.License
	var hwids string
	err := row.Scan(
		&lic.ID, &lic.Key, &lic.Type, &lic.UserID, &lic.AdminID, &hwids,
		&lic.RequestLimit, &lic.RequestCount, &lic.ValidUntil,
		&lic.LastUsedIP, &lic.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(hwids), &lic.HWIDs); err != nil {
		return nil, err
	}
	return &lic, nil
}

const licenseColumns = `id, license_key, type, user_id, admin_id, hwids,
        request_limit, request_count, valid_until, last_used_ip, created_at`

func (s *SQLiteDB) GetLicenseByID(id string) (*models.License, error) {
	return s.scanLicense(s.db.QueryRow(`
        SELECT `+licenseColumns+` FROM licenses WHERE id = ?
    `, id))
}

func (s *SQLiteDB) GetLicenseByKey(key string) (*models.License, error) {
	return s.scanLicense(s.db.QueryRow(`
        SELECT `+licenseColumns+` FROM licenses WHERE license_key = ?
    `, key))
}

func (s *SQLiteDB) GetLicensesByUserID(userID string) ([]models.License, error) {
	return s.queryLicenses(`
        SELECT `+licenseColumns+` FROM licenses WHERE user_id = ? ORDER BY created_at DESC
    `, userID)
}

func (s *SQLiteDB) ListLicenses() ([]models.License, error) {
	return s.queryLicenses(`
        SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at DESC
    `)
}

func (s *SQLiteDB) queryLicenses(query string, args ...any) ([]models.License, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []models.License
	for rows.Next() {
		var lic models.License
		var hwids string
		err := rows.Scan(
			&lic.ID, &lic.Key, &lic.Type, &lic.UserID, &lic.AdminID, &hwids,
			&lic.RequestLimit, &lic.RequestCount, &lic.ValidUntil,
			&lic.LastUsedIP, &lic.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(hwids), &lic.HWIDs); err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

// UpdateLicense overwrites the admin-mutable attributes of a license:
// device set, request limit, validity and type. The usage counter is only
// ever touched through IncrementLicenseUsage.
func (s *SQLiteDB) UpdateLicense(lic *models.License) error {
	hwids, err := json.Marshal(lic.HWIDs)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
        UPDATE licenses SET
            type = ?,
            hwids = ?,
            request_limit = ?,
            valid_until = ?
        WHERE id = ?
    `, lic.Type, string(hwids), lic.RequestLimit, lic.ValidUntil, lic.ID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteDB) DeleteLicense(id string) error {
	res, err := s.db.Exec(`DELETE FROM licenses WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementLicenseUsage bumps request_count by one in a single statement and
// returns the post-increment record. Concurrent validations therefore each
// observe their own distinct counter value; there is no read-then-write
// window in which two requests could consume the same slot.
func (s *SQLiteDB) IncrementLicenseUsage(id, ip string) (*models.License, error) {
	return s.scanLicense(s.db.QueryRow(`
        UPDATE licenses SET
            request_count = request_count + 1,
            last_used_ip = ?
        WHERE id = ?
        RETURNING `+licenseColumns, ip, id))
}

// Blocklist methods

// UpsertBlockedIP inserts a block or, when the address is already blocked,
// refreshes its reason, issuer and expiry in place.
func (s *SQLiteDB) UpsertBlockedIP(b *models.BlockedIP) error {
	_, err := s.db.Exec(`
        INSERT INTO blocked_ips (ip_address, reason, blocked_by, blocked_at, expires_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(ip_address) DO UPDATE SET
            reason = excluded.reason,
            blocked_by = excluded.blocked_by,
            blocked_at = excluded.blocked_at,
            expires_at = excluded.expires_at
    `, b.IPAddress, b.Reason, b.BlockedBy, b.BlockedAt, b.ExpiresAt)
	return err
}

func (s *SQLiteDB) GetBlockedIP(ip string) (*models.BlockedIP, error) {
	var b models.BlockedIP
	err := s.db.QueryRow(`
        SELECT id, ip_address, reason, blocked_by, blocked_at, expires_at
        FROM blocked_ips WHERE ip_address = ?
    `, ip).Scan(&b.ID, &b.IPAddress, &b.Reason, &b.BlockedBy, &b.BlockedAt, &b.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteDB) DeleteBlockedIP(ip string) error {
	_, err := s.db.Exec(`DELETE FROM blocked_ips WHERE ip_address = ?`, ip)
	return err
}

func (s *SQLiteDB) ListBlockedIPs(limit, offset int) ([]models.BlockedIP, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocked_ips`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
        SELECT id, ip_address, reason, blocked_by, blocked_at, expires_at
        FROM blocked_ips
        ORDER BY blocked_at DESC
        LIMIT ? OFFSET ?
    `, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var blocked []models.BlockedIP
	for rows.Next() {
		var b models.BlockedIP
		err := rows.Scan(&b.ID, &b.IPAddress, &b.Reason, &b.BlockedBy, &b.BlockedAt, &b.ExpiresAt)
		if err != nil {
			return nil, 0, err
		}
		blocked = append(blocked, b)
	}
	return blocked, total, rows.Err()
}

// Failed attempt methods

func (s *SQLiteDB) RecordFailedAttempt(ip string) error {
	_, err := s.db.Exec(`
        INSERT INTO failed_attempts (ip_address, created_at) VALUES (?, ?)
    `, ip, time.Now())
	return err
}

func (s *SQLiteDB) CountFailedAttempts(ip string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
        SELECT COUNT(*) FROM failed_attempts
        WHERE ip_address = ? AND created_at >= ?
    `, ip, since).Scan(&count)
	return count, err
}

// User methods

func (s *SQLiteDB) CreateUser(user *models.User) error {
	res, err := s.db.Exec(`
        INSERT INTO users (username, password, role, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
    `, user.Username, user.Password, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}

	user.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDB) GetUserByUsername(username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(`
        SELECT id, username, password, role, last_login_at, last_login_ip,
               failed_attempts, locked_until, created_at, updated_at
        FROM users WHERE username = ?
    `, username))
}

func (s *SQLiteDB) GetUserByID(id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(`
        SELECT id, username, password, role, last_login_at, last_login_ip,
               failed_attempts, locked_until, created_at, updated_at
        FROM users WHERE id = ?
    `, id))
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Password, &user.Role,
		&user.LastLoginAt, &user.LastLoginIP, &user.FailedAttempts,
		&user.LockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteDB) UpdateUser(user *models.User) error {
	_, err := s.db.Exec(`
        UPDATE users SET
            last_login_at = ?,
            last_login_ip = ?,
            failed_attempts = ?,
            locked_until = ?,
            updated_at = ?
        WHERE id = ?
    `, user.LastLoginAt, user.LastLoginIP, user.FailedAttempts,
		user.LockedUntil, time.Now(), user.ID)
	return err
}

// Token methods

func (s *SQLiteDB) CreateToken(token *models.Token) error {
	_, err := s.db.Exec(`
        INSERT INTO tokens (
            user_id, token, jti, role, expires_at, created_at,
            last_used_at, client_ip, user_agent
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, token.UserID, token.Token, token.JTI, token.Role, token.ExpiresAt,
		token.CreatedAt, token.LastUsedAt, token.ClientIP, token.UserAgent)
	return err
}

func (s *SQLiteDB) GetTokenByJTI(jti string) (*models.Token, error) {
	var token models.Token
	err := s.db.QueryRow(`
        SELECT id, user_id, token, jti, role, expires_at, created_at,
               last_used_at, revoked_at, client_ip, user_agent
        FROM tokens WHERE jti = ?
    `, jti).Scan(
		&token.ID, &token.UserID, &token.Token, &token.JTI, &token.Role,
		&token.ExpiresAt, &token.CreatedAt, &token.LastUsedAt,
		&token.RevokedAt, &token.ClientIP, &token.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *SQLiteDB) TouchToken(id int64, usedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE tokens SET last_used_at = ? WHERE id = ?`, usedAt, id)
	return err
}

func (s *SQLiteDB) RevokeToken(jti string) error {
	_, err := s.db.Exec(`
        UPDATE tokens SET revoked_at = ? WHERE jti = ? AND revoked_at IS NULL
    `, time.Now(), jti)
	return err
}

func (s *SQLiteDB) RevokeAllUserTokens(userID int64) error {
	_, err := s.db.Exec(`
        UPDATE tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL
    `, time.Now(), userID)
	return err
}

// CleanupExpiredTokens removes tokens that expired, or were revoked more
// than a day ago. Licenses and IP blocks are deliberately never swept; this
// applies to session tokens only.
func (s *SQLiteDB) CleanupExpiredTokens() error {
	_, err := s.db.Exec(`
        DELETE FROM tokens
        WHERE expires_at < ?
        OR (revoked_at IS NOT NULL AND revoked_at < ?)
    `, time.Now(), time.Now().Add(-24*time.Hour))
	return err
}
