package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Homedex/internal/config"
	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
)

// UncategorizedRoom is how clients name devices that have no room.
const UncategorizedRoom = "Uncategorized"

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN pins verify-ca when a root certificate is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Devices

const deviceColumns = `id, name, COALESCE(brand, ''), COALESCE(model, ''), COALESCE(room, ''),
	COALESCE(category, ''), manual_files, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d     models.Device
		files []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Brand, &d.Model, &d.Room, &d.Category, &files, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	list, err := decodeManualFiles(files)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", d.ID, err)
	}
	d.ManualFiles = list
	return &d, nil
}

// encodeManualFiles stores the file list as a sorted JSON array without duplicates.
func encodeManualFiles(files []string) (string, error) {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeManualFiles(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode manual_files: %w", err)
	}
	return out, nil
}

func (c *DatabaseClient) UpsertDevice(ctx context.Context, device *models.Device) error {
	if device == nil {
		return errors.New("nil device")
	}
	files, err := encodeManualFiles(device.ManualFiles)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO devices (id, name, brand, model, room, category, manual_files, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7::jsonb, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			room = EXCLUDED.room,
			category = EXCLUDED.category,
			manual_files = EXCLUDED.manual_files,
			updated_at = now()
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		device.ID, device.Name, device.Brand, device.Model, device.Room, device.Category, files,
	).Scan(&device.CreatedAt, &device.UpdatedAt)
}

func (c *DatabaseClient) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	d, err := scanDevice(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDevices(ctx context.Context) ([]models.Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices ORDER BY COALESCE(room, ''), name, id`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDevice(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDeviceNotFound
	}
	return nil
}

func (c *DatabaseClient) UpdateDeviceMetadata(ctx context.Context, id string, meta models.DeviceMetadata) (*models.Device, error) {
	q := `
		UPDATE devices
		SET name = $2, brand = NULLIF($3, ''), model = NULLIF($4, ''),
			room = NULLIF($5, ''), category = NULLIF($6, ''), updated_at = now()
		WHERE id = $1
		RETURNING ` + deviceColumns
	d, err := scanDevice(c.db.QueryRowContext(ctx, q,
		id, meta.Name, meta.Brand, meta.Model, strings.TrimSpace(meta.Room), meta.Category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDeviceNotFound
	}
	return d, err
}

// RenameRoom moves every device in oldRoom to newRoom. The Uncategorized
// pseudo-room matches devices without a room, and a blank newRoom clears it.
func (c *DatabaseClient) RenameRoom(ctx context.Context, oldRoom, newRoom string) (int64, error) {
	q, args := renameRoomQuery(oldRoom, newRoom)
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Info().Str("old_room", oldRoom).Str("new_room", newRoom).Int64("devices", n).Msg("room renamed")
	return n, nil
}

func renameRoomQuery(oldRoom, newRoom string) (string, []any) {
	newRoom = strings.TrimSpace(newRoom)
	if oldRoom == UncategorizedRoom {
		return `UPDATE devices SET room = NULLIF($1, ''), updated_at = now() WHERE room IS NULL OR room = ''`,
			[]any{newRoom}
	}
	return `UPDATE devices SET room = NULLIF($1, ''), updated_at = now() WHERE room = $2`,
		[]any{newRoom, oldRoom}
}

func (c *DatabaseClient) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT room FROM devices
		WHERE room IS NOT NULL AND room <> ''
		ORDER BY room
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Manual chunks

// InsertManualChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertManualChunks(ctx context.Context, chunks []models.ManualChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO manual_chunks
			(id, device_id, file_name, position, page, text, embedding, token_count, source_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var page sql.NullInt64
		if ch.Page != nil {
			page = sql.NullInt64{Int64: int64(*ch.Page), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DeviceID, ch.FileName, ch.Position, page, ch.Text,
			pgvector.NewVector(ch.Embedding), ch.TokenCount, ch.SourceType,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d of %s: %w", ch.Position, ch.DeviceID, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteChunksByDevice(ctx context.Context, deviceID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM manual_chunks WHERE device_id = $1`, deviceID)
	return err
}

// SearchChunks returns the chunks closest to embedding by cosine distance,
// joined with their device.
func (c *DatabaseClient) SearchChunks(ctx context.Context, embedding []float32, filter models.ChunkFilter, limit int) ([]models.ChunkMatch, error) {
	q, args := searchQuery(pgvector.NewVector(embedding), filter, limit)
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkMatch
	for rows.Next() {
		var (
			m    models.ChunkMatch
			page sql.NullInt64
		)
		if err := rows.Scan(
			&m.ID, &m.DeviceID, &m.FileName, &m.Position, &page, &m.Text, &m.TokenCount, &m.SourceType, &m.CreatedAt,
			&m.DeviceName, &m.Room, &m.Brand, &m.Model, &m.Similarity,
		); err != nil {
			return nil, err
		}
		if page.Valid {
			p := int(page.Int64)
			m.Page = &p
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// searchQuery filters by device when set, otherwise by room.
func searchQuery(vec pgvector.Vector, filter models.ChunkFilter, limit int) (string, []any) {
	if limit <= 0 {
		limit = 5
	}
	args := []any{vec}

	var where string
	switch {
	case filter.DeviceID != "":
		args = append(args, filter.DeviceID)
		where = fmt.Sprintf("WHERE c.device_id = $%d", len(args))
	case filter.Room != "":
		args = append(args, filter.Room)
		where = fmt.Sprintf("WHERE d.room = $%d", len(args))
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT c.id, c.device_id, c.file_name, c.position, c.page, c.text, c.token_count, c.source_type, c.created_at,
			d.name, COALESCE(d.room, ''), COALESCE(d.brand, ''), COALESCE(d.model, ''),
			1 - (c.embedding <=> $1) AS similarity
		FROM manual_chunks c
		JOIN devices d ON d.id = c.device_id
		%s
		ORDER BY c.embedding <=> $1
		LIMIT $%d
	`, where, len(args))
	return q, args
}

var _ core.DbClient = (*DatabaseClient)(nil)
