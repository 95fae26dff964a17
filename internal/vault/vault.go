// Package vault is the token vault: it persists OAuth credentials as
// envelope-encrypted blobs and exposes the CRUD and selection queries the
// refresh scheduler and health monitor run against.
package vault

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/crypto"
	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthprovider"
)

// Vault stores and retrieves connections, encrypting/decrypting tokens
// at the boundary so every other subsystem only ever sees plaintext.
type Vault struct {
	db     *db.DB
	cipher *crypto.TokenCipher
}

// New builds a Vault backed by database and cipher.
func New(database *db.DB, cipher *crypto.TokenCipher) *Vault {
	return &Vault{db: database, cipher: cipher}
}

// StoreToken upserts a connection for (userID, provider), encrypting the
// access token (and refresh token, if present) with the current key and
// incrementing token_version on update.
func (v *Vault) StoreToken(userID uuid.UUID, provider models.Platform, providerUserID string, scopes []string, accessToken, refreshToken string, expiresAt *time.Time) (*models.Connection, error) {
	accessCiphertext, err := v.cipher.EncryptString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}
	var refreshCiphertext []byte
	if refreshToken != "" {
		refreshCiphertext, err = v.cipher.EncryptString(refreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypting refresh token: %w", err)
		}
	}

	existing, err := v.GetConnection(userID, provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	scopesStr := strings.Join(scopes, " ")
	keyID := v.cipher.CurrentKeyID()

	if existing == nil {
		id := uuid.New()
		_, err := v.db.Exec(`
		INSERT INTO connections (
			id, user_id, provider, provider_user_id, scopes,
			access_token_ciphertext, refresh_token_ciphertext, token_version,
			expires_at, status, data_key_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
			id.String(), userID.String(), string(provider), providerUserID, scopesStr,
			accessCiphertext, nullableBytes(refreshCiphertext), expiresAt,
			string(models.StatusActive), keyID, now, now)
		if err != nil {
			return nil, fmt.Errorf("inserting connection: %w", err)
		}
		return v.GetConnection(userID, provider)
	}

	_, err = v.db.Exec(`
	UPDATE connections SET
		provider_user_id = ?, scopes = ?,
		access_token_ciphertext = ?, refresh_token_ciphertext = ?,
		token_version = token_version + 1,
		expires_at = ?, status = ?, error_code = NULL, data_key_id = ?, updated_at = ?
	WHERE user_id = ? AND provider = ?`,
		providerUserID, scopesStr,
		accessCiphertext, nullableBytes(refreshCiphertext),
		expiresAt, string(models.StatusActive), keyID, now,
		userID.String(), string(provider))
	if err != nil {
		return nil, fmt.Errorf("updating connection: %w", err)
	}
	return v.GetConnection(userID, provider)
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// GetConnection fetches the connection for (userID, provider), or nil if
// none exists.
func (v *Vault) GetConnection(userID uuid.UUID, provider models.Platform) (*models.Connection, error) {
	row := v.db.QueryRow(`
	SELECT id, user_id, provider, provider_user_id, scopes,
	       access_token_ciphertext, refresh_token_ciphertext, token_version,
	       expires_at, status, last_health_check, error_code, data_key_id,
	       created_at, updated_at
	FROM connections WHERE user_id = ? AND provider = ?`, userID.String(), string(provider))
	return scanConnection(row)
}

// GetConnectionByID fetches a connection by its own id.
func (v *Vault) GetConnectionByID(id uuid.UUID) (*models.Connection, error) {
	row := v.db.QueryRow(`
	SELECT id, user_id, provider, provider_user_id, scopes,
	       access_token_ciphertext, refresh_token_ciphertext, token_version,
	       expires_at, status, last_health_check, error_code, data_key_id,
	       created_at, updated_at
	FROM connections WHERE id = ?`, id.String())
	return scanConnection(row)
}

// GetUserConnections lists every connection belonging to userID.
func (v *Vault) GetUserConnections(userID uuid.UUID) ([]*models.Connection, error) {
	rows, err := v.db.Query(`
	SELECT id, user_id, provider, provider_user_id, scopes,
	       access_token_ciphertext, refresh_token_ciphertext, token_version,
	       expires_at, status, last_health_check, error_code, data_key_id,
	       created_at, updated_at
	FROM connections WHERE user_id = ? ORDER BY provider`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ConnectionsNeedingRefresh returns active connections whose token
// expires within threshold, the selection query the proactive refresh
// scheduler runs on each tick.
func (v *Vault) ConnectionsNeedingRefresh(threshold time.Duration) ([]*models.Connection, error) {
	cutoff := time.Now().UTC().Add(threshold)
	rows, err := v.db.Query(`
	SELECT id, user_id, provider, provider_user_id, scopes,
	       access_token_ciphertext, refresh_token_ciphertext, token_version,
	       expires_at, status, last_health_check, error_code, data_key_id,
	       created_at, updated_at
	FROM connections
	WHERE status = ? AND refresh_token_ciphertext IS NOT NULL AND expires_at IS NOT NULL AND expires_at < ?
	ORDER BY expires_at ASC`, string(models.StatusActive), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ConnectionsDueForHealthCheck returns active connections that either
// have never been health-checked or were last checked before now minus
// interval, ordered oldest-checked first (never-checked rows sort
// first, since they are the most overdue by definition).
func (v *Vault) ConnectionsDueForHealthCheck(interval time.Duration) ([]*models.Connection, error) {
	cutoff := time.Now().UTC().Add(-interval)
	rows, err := v.db.Query(`
	SELECT id, user_id, provider, provider_user_id, scopes,
	       access_token_ciphertext, refresh_token_ciphertext, token_version,
	       expires_at, status, last_health_check, error_code, data_key_id,
	       created_at, updated_at
	FROM connections
	WHERE status = ? AND (last_health_check IS NULL OR last_health_check < ?)
	ORDER BY last_health_check IS NOT NULL, last_health_check ASC`, string(models.StatusActive), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// DecryptAccessToken decrypts a connection's access token ciphertext.
func (v *Vault) DecryptAccessToken(conn *models.Connection) (string, error) {
	return v.cipher.DecryptString(conn.AccessTokenCiphertext)
}

// DecryptRefreshToken decrypts a connection's refresh token ciphertext,
// returning "" if the connection has no refresh token.
func (v *Vault) DecryptRefreshToken(conn *models.Connection) (string, error) {
	if conn.RefreshTokenCiphertext == nil {
		return "", nil
	}
	return v.cipher.DecryptString(conn.RefreshTokenCiphertext)
}

// UpdateStatus transitions a connection's status, optionally recording
// an error code.
func (v *Vault) UpdateStatus(id uuid.UUID, status models.ConnectionStatus, errorCode *string) error {
	_, err := v.db.Exec(`
	UPDATE connections SET status = ?, error_code = ?, updated_at = ? WHERE id = ?`,
		string(status), errorCode, time.Now().UTC(), id.String())
	return err
}

// RecordHealthCheck stamps last_health_check for a connection.
func (v *Vault) RecordHealthCheck(id uuid.UUID, checkedAt time.Time) error {
	_, err := v.db.Exec(`UPDATE connections SET last_health_check = ?, updated_at = ? WHERE id = ?`,
		checkedAt, time.Now().UTC(), id.String())
	return err
}

// DeleteConnection removes a connection outright (user-initiated
// disconnect, not a status transition).
func (v *Vault) DeleteConnection(id uuid.UUID) error {
	_, err := v.db.Exec(`DELETE FROM connections WHERE id = ?`, id.String())
	return err
}

// DeleteUserConnections removes every connection belonging to userID.
// Idempotent: deleting a user with no connections succeeds silently.
func (v *Vault) DeleteUserConnections(userID uuid.UUID) error {
	_, err := v.db.Exec(`DELETE FROM connections WHERE user_id = ?`, userID.String())
	return err
}

// RefreshToken decrypts connID's stored refresh token, exchanges it
// through provider, and on success re-encrypts and writes the new
// access/refresh tokens and expiry. On failure the row is left
// untouched; the caller is responsible for deciding whether the
// failure should also transition the connection's status.
func (v *Vault) RefreshToken(ctx context.Context, connID uuid.UUID, provider oauthprovider.Provider) (*models.Connection, error) {
	conn, err := v.GetConnectionByID(connID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s not found", connID)
	}

	refreshToken, err := v.DecryptRefreshToken(conn)
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token: %w", err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("connection %s has no refresh token", connID)
	}

	newToken, err := provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing token with provider: %w", err)
	}

	accessCiphertext, err := v.cipher.EncryptString(newToken.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting refreshed access token: %w", err)
	}
	refreshCiphertext := conn.RefreshTokenCiphertext
	if newToken.RefreshToken != "" {
		refreshCiphertext, err = v.cipher.EncryptString(newToken.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypting refreshed refresh token: %w", err)
		}
	}

	var expiresAt *time.Time
	if !newToken.Expiry.IsZero() {
		expiry := newToken.Expiry.UTC()
		expiresAt = &expiry
	}

	now := time.Now().UTC()
	_, err = v.db.Exec(`
	UPDATE connections SET
		access_token_ciphertext = ?, refresh_token_ciphertext = ?,
		token_version = token_version + 1,
		expires_at = ?, status = ?, error_code = NULL, data_key_id = ?, updated_at = ?
	WHERE id = ?`,
		accessCiphertext, nullableBytes(refreshCiphertext),
		expiresAt, string(models.StatusActive), v.cipher.CurrentKeyID(), now,
		connID.String())
	if err != nil {
		return nil, fmt.Errorf("persisting refreshed connection: %w", err)
	}
	return v.GetConnectionByID(connID)
}

// Statistics aggregates connection counts for operational dashboards.
func (v *Vault) Statistics() (*models.VaultStatistics, error) {
	rows, err := v.db.Query(`SELECT status, COUNT(*) FROM connections GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ConnectionStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.ConnectionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expiringSoon int64
	cutoff := time.Now().UTC().Add(5 * time.Minute)
	err = v.db.QueryRow(`
	SELECT COUNT(*) FROM connections
	WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		string(models.StatusActive), cutoff).Scan(&expiringSoon)
	if err != nil {
		return nil, err
	}

	return &models.VaultStatistics{CountsByStatus: counts, ExpiringWithin5Min: expiringSoon}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*models.Connection, error) {
	var c models.Connection
	var idStr, userIDStr, providerStr, statusStr, scopesStr string
	var refreshCiphertext []byte

	err := row.Scan(
		&idStr, &userIDStr, &providerStr, &c.ProviderUserID, &scopesStr,
		&c.AccessTokenCiphertext, &refreshCiphertext, &c.TokenVersion,
		&c.ExpiresAt, &statusStr, &c.LastHealthCheck, &c.ErrorCode, &c.DataKeyID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection id: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection user id: %w", err)
	}

	c.ID = id
	c.UserID = userID
	c.Provider = models.Platform(providerStr)
	c.Status = models.ConnectionStatus(statusStr)
	c.RefreshTokenCiphertext = refreshCiphertext
	if scopesStr != "" {
		c.Scopes = strings.Split(scopesStr, " ")
	}
	return &c, nil
}

func scanConnections(rows *sql.Rows) ([]*models.Connection, error) {
	var out []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
