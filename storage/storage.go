// Package storage implements the SQLite-backed relation the pool
// controller reads and writes: a single `premints` table with
// upsert-by-version semantics, seen-on-chain marking, and filtered
// listing. Grounded on the original's src/storage.rs, ported from sqlx
// to the Go ecosystem's jmoiron/sqlx over the pure-Go modernc.org/sqlite
// driver (no cgo, matching the "pure Go where possible" posture of the
// rest of this tree).
package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/premint"
)

const schema = `
CREATE TABLE IF NOT EXISTS premints (
	id                 TEXT NOT NULL,
	kind               TEXT NOT NULL,
	version            INTEGER NOT NULL,
	signer             TEXT NOT NULL,
	chain_id           INTEGER NOT NULL,
	collection_address TEXT NOT NULL,
	token_id           TEXT NOT NULL,
	token_uri          TEXT NOT NULL,
	json               TEXT NOT NULL,
	seen_on_chain      INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_premints_token_uri ON premints(token_uri);
CREATE INDEX IF NOT EXISTS idx_premints_seen_on_chain ON premints(seen_on_chain);
`

// ErrVersionTooLow is returned by Store when the incoming version is not
// strictly greater than the version already on record.
var ErrVersionTooLow = fmt.Errorf("cannot store premint with lower version than existing")

// ErrNotFound is returned by point reads when no matching row exists,
// distinguished from other failures so rules can treat "no prior version"
// differently from a broken connection.
var ErrNotFound = sql.ErrNoRows

// QueryOptions filters list_all_with_options and the peer sync protocol's
// request payload, per SPEC_FULL.md §3/§6.
type QueryOptions struct {
	Kind              *premint.Kind `json:"kind,omitempty"`
	ChainID           *uint64       `json:"chainId,omitempty"`
	CollectionAddress *string       `json:"collectionAddress,omitempty"`
	CreatorAddress    *string       `json:"creatorAddress,omitempty"`
	From              *time.Time    `json:"from,omitempty"`
	To                *time.Time    `json:"to,omitempty"`
}

// Storage is a handle onto the premints relation. Only the instance
// returned by New carries the "prune on retire" role; Clone always
// returns a handle with prune=false, per spec.md §4.1/§9.
type Storage struct {
	db    *sqlx.DB
	prune bool
}

// New opens (and migrates) the premints database. When persist is false
// the DSN is ":memory:" and the pool is pinned to a single open
// connection — SQLite in-memory databases are per-connection, so a pool
// of more than one silently loses writes across connections.
func New(databaseURL string, persist bool, pruneMintedPremints bool) (*Storage, error) {
	dsn := ":memory:"
	if persist {
		if databaseURL == "" {
			return nil, fmt.Errorf("storage: DATABASE_URL is required when PERSIST_STATE=true")
		}
		dsn = databaseURL
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to %s: %w", dsn, err)
	}
	if !persist {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: creating premints table: %w", err)
	}

	return &Storage{db: db, prune: pruneMintedPremints}, nil
}

// Clone returns a handle sharing the same connection pool but never
// responsible for pruning, per the cloning rule in spec.md §4.1.
func (s *Storage) Clone() *Storage {
	return &Storage{db: s.db, prune: false}
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error { return s.db.Close() }

type premintRow struct {
	ID                string `db:"id"`
	Kind              string `db:"kind"`
	Version           int64  `db:"version"`
	Signer            string `db:"signer"`
	ChainID           int64  `db:"chain_id"`
	CollectionAddress string `db:"collection_address"`
	TokenID           string `db:"token_id"`
	TokenURI          string `db:"token_uri"`
	JSON              string `db:"json"`
	SeenOnChain       bool   `db:"seen_on_chain"`
	CreatedAt         string `db:"created_at"`
}

// Store inserts a premint, or updates it in place if (kind, id) already
// exists and the incoming version is strictly greater. Returns
// ErrVersionTooLow if a row exists with a version >= the incoming one.
func (s *Storage) Store(p premint.Premint) error {
	meta := p.Metadata()
	body, err := premint.ToJSON(p)
	if err != nil {
		return fmt.Errorf("storage: encoding premint: %w", err)
	}

	tokenID := "0"
	if meta.TokenID != nil {
		tokenID = meta.TokenID.String()
	}

	result, err := s.db.Exec(`
		INSERT INTO premints (id, kind, version, signer, chain_id, collection_address, token_id, token_uri, json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			version = excluded.version,
			json = excluded.json,
			token_uri = excluded.token_uri,
			signer = excluded.signer
		WHERE excluded.version > premints.version
	`, meta.ID, string(meta.Kind), int64(meta.Version), meta.Signer.Hex(), int64(meta.ChainID),
		meta.CollectionAddress.Hex(), tokenID, meta.URI, string(body))
	if err != nil {
		return fmt.Errorf("storage: storing premint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: checking rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish "no such row yet" (impossible, insert always adds
		// a row on first store) from "version rejected" by checking
		// whether the row already existed.
		var exists int
		lookErr := s.db.Get(&exists, `SELECT 1 FROM premints WHERE kind = ? AND id = ?`, string(meta.Kind), meta.ID)
		if lookErr == sql.ErrNoRows {
			return fmt.Errorf("storage: insert affected no rows unexpectedly")
		}
		return ErrVersionTooLow
	}
	return nil
}

// MarkSeenOnChain retires a premint per claim: deletes it if
// prune_minted_premints is enabled, otherwise flips seen_on_chain. Both
// paths are idempotent.
func (s *Storage) MarkSeenOnChain(claim premint.InclusionClaim) error {
	if s.prune {
		result, err := s.db.Exec(`DELETE FROM premints WHERE id = ? AND chain_id = ? AND kind = ?`,
			claim.PremintID, int64(claim.ChainID), string(claim.Kind))
		if err != nil {
			return fmt.Errorf("storage: pruning premint: %w", err)
		}
		rows, _ := result.RowsAffected()
		log.Debug("pruned premint on chain inclusion", "rows", rows, "premint_id", claim.PremintID)
		return nil
	}

	result, err := s.db.Exec(`UPDATE premints SET seen_on_chain = 1 WHERE id = ? AND chain_id = ? AND kind = ?`,
		claim.PremintID, int64(claim.ChainID), string(claim.Kind))
	if err != nil {
		return fmt.Errorf("storage: marking premint seen on chain: %w", err)
	}
	rows, _ := result.RowsAffected()
	log.Debug("marked premint seen on chain", "rows", rows, "premint_id", claim.PremintID)
	return nil
}

// GetForIDAndKind is a point read keyed on the (kind, id) primary key.
func (s *Storage) GetForIDAndKind(id string, kind premint.Kind) (premint.Premint, error) {
	var json string
	if err := s.db.Get(&json, `SELECT json FROM premints WHERE id = ? AND kind = ?`, id, string(kind)); err != nil {
		return nil, err
	}
	return premint.FromJSON([]byte(json))
}

// GetForTokenURI is a point read by token_uri, used by the
// existing_token_uri rule to detect collisions.
func (s *Storage) GetForTokenURI(uri string) (premint.Premint, error) {
	var json string
	if err := s.db.Get(&json, `SELECT json FROM premints WHERE token_uri = ?`, uri); err != nil {
		return nil, err
	}
	return premint.FromJSON([]byte(json))
}

// ListAll returns every active (not yet seen on chain) premint.
func (s *Storage) ListAll() ([]premint.Premint, error) {
	return s.ListAllWithOptions(QueryOptions{})
}

// ListAllWithOptions ANDs together every provided filter on top of the
// seen_on_chain = false base predicate.
func (s *Storage) ListAllWithOptions(opts QueryOptions) ([]premint.Premint, error) {
	query, args := buildQuery(opts)

	var jsons []string
	if err := s.db.Select(&jsons, query, args...); err != nil {
		return nil, fmt.Errorf("storage: listing premints: %w", err)
	}

	premints := make([]premint.Premint, 0, len(jsons))
	for _, j := range jsons {
		p, err := premint.FromJSON([]byte(j))
		if err != nil {
			log.Warn("failed to deserialize premint in db", "err", err)
			continue
		}
		premints = append(premints, p)
	}
	return premints, nil
}

func buildQuery(opts QueryOptions) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT json FROM premints WHERE seen_on_chain = 0")
	var args []interface{}

	if opts.Kind != nil {
		b.WriteString(" AND kind = ?")
		args = append(args, string(*opts.Kind))
	}
	if opts.ChainID != nil {
		b.WriteString(" AND chain_id = ?")
		args = append(args, strconv.FormatUint(*opts.ChainID, 10))
	}
	if opts.CollectionAddress != nil {
		b.WriteString(" AND collection_address = ?")
		args = append(args, *opts.CollectionAddress)
	}
	if opts.CreatorAddress != nil {
		b.WriteString(" AND signer = ?")
		args = append(args, *opts.CreatorAddress)
	}
	if opts.From != nil {
		b.WriteString(" AND created_at >= ?")
		args = append(args, opts.From.UTC().Format(time.DateTime))
	}
	if opts.To != nil {
		b.WriteString(" AND created_at <= ?")
		args = append(args, opts.To.UTC().Format(time.DateTime))
	}
	return b.String(), args
}
