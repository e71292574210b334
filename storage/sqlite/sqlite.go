// Package sqlite implements storage.PeerDatabase on top of
// database/sql and mattn/go-sqlite3, grounded on spec §4.2's literal
// schema and upsert semantics and on original_source/src/peer_db/sqlite.rs
// for the exact statement shapes. Chihaya's SQL-backed driver
// (storage/database/peer_store.go) is register-by-name but uses gorm;
// here the contract is specified at the raw-SQL level, so the teacher's
// ORM layer is bypassed in favor of database/sql directly (see DESIGN.md).
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Anshorei/zeronet-tracker/address"
	"github.com/Anshorei/zeronet-tracker/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT UNIQUE NOT NULL,
	date_added INTEGER NOT NULL,
	last_seen INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS hashes (
	pk INTEGER PRIMARY KEY AUTOINCREMENT,
	hash BLOB UNIQUE NOT NULL,
	date_added INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS peer_hashes (
	peer_pk INTEGER NOT NULL REFERENCES peers(pk),
	hash_pk INTEGER NOT NULL REFERENCES hashes(pk),
	UNIQUE(peer_pk, hash_pk)
);
`

// Store is the SQLite-backed PeerDatabase.
type Store struct {
	db *sql.DB
}

var _ storage.PeerDatabase = (*Store)(nil)

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// The protocol dispatches one handler per connection on its own
	// goroutine, but the shared mutex (see shared.State) already
	// serializes every call into this store; a single connection
	// avoids SQLITE_BUSY without needing WAL tuning.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpdatePeer implements the upsert described in spec §4.2: ON CONFLICT
// refreshes last_seen and RETURNING tells us whether the row's
// original date_added differs from the one we just sent. A row that
// pre-existed with the same date_added second as the one sent is
// therefore reported as newly inserted (false).
func (s *Store) UpdatePeer(peer storage.Peer, hashes []storage.Hash) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	addr := peer.Address.Format()
	dateAdded := peer.DateAdded.Unix()
	lastSeen := peer.LastSeen.Unix()

	var returnedDateAdded int64
	row := tx.QueryRow(`
		INSERT INTO peers(address, date_added, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET last_seen = excluded.last_seen
		RETURNING date_added
	`, addr, dateAdded, lastSeen)
	if err := row.Scan(&returnedDateAdded); err != nil {
		return false, fmt.Errorf("sqlite: update_peer: %w", err)
	}
	existed := returnedDateAdded != dateAdded

	var peerPk int64
	if err := tx.QueryRow(`SELECT pk FROM peers WHERE address = ?`, addr).Scan(&peerPk); err != nil {
		return false, fmt.Errorf("sqlite: update_peer: lookup pk: %w", err)
	}

	now := time.Now().Unix()
	for _, h := range hashes {
		if _, err := tx.Exec(`
			INSERT INTO hashes(hash, date_added) VALUES (?, ?)
			ON CONFLICT(hash) DO NOTHING
		`, []byte(h), now); err != nil {
			return false, fmt.Errorf("sqlite: update_peer: insert hash: %w", err)
		}

		var hashPk int64
		if err := tx.QueryRow(`SELECT pk FROM hashes WHERE hash = ?`, []byte(h)).Scan(&hashPk); err != nil {
			return false, fmt.Errorf("sqlite: update_peer: lookup hash pk: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO peer_hashes(peer_pk, hash_pk) VALUES (?, ?)
			ON CONFLICT(peer_pk, hash_pk) DO NOTHING
		`, peerPk, hashPk); err != nil {
			return false, fmt.Errorf("sqlite: update_peer: link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return existed, nil
}

func (s *Store) RemovePeer(addr address.PeerAddress) (*storage.Peer, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	key := addr.Format()
	var pk, dateAdded, lastSeen int64
	err = tx.QueryRow(`SELECT pk, date_added, last_seen FROM peers WHERE address = ?`, key).Scan(&pk, &dateAdded, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("sqlite: remove_peer: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM peer_hashes WHERE peer_pk = ?`, pk); err != nil {
		return nil, fmt.Errorf("sqlite: remove_peer: unlink: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM peers WHERE pk = ?`, pk); err != nil {
		return nil, fmt.Errorf("sqlite: remove_peer: delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	peer := storage.Peer{
		Address:   addr,
		DateAdded: time.Unix(dateAdded, 0),
		LastSeen:  time.Unix(lastSeen, 0),
	}
	return &peer, nil
}

func (s *Store) GetPeer(addr address.PeerAddress) (*storage.Peer, error) {
	var dateAdded, lastSeen int64
	err := s.db.QueryRow(`SELECT date_added, last_seen FROM peers WHERE address = ?`, addr.Format()).Scan(&dateAdded, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("sqlite: get_peer: %w", err)
	}
	peer := storage.Peer{
		Address:   addr,
		DateAdded: time.Unix(dateAdded, 0),
		LastSeen:  time.Unix(lastSeen, 0),
	}
	return &peer, nil
}

func (s *Store) GetPeers() ([]storage.Peer, error) {
	rows, err := s.db.Query(`SELECT address, date_added, last_seen FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_peers: %w", err)
	}
	defer rows.Close()
	return scanPeers(rows)
}

func (s *Store) GetPeersForHash(hash storage.Hash) ([]storage.Peer, error) {
	rows, err := s.db.Query(`
		SELECT p.address, p.date_added, p.last_seen
		FROM peers p
		JOIN peer_hashes ph ON ph.peer_pk = p.pk
		JOIN hashes h ON h.pk = ph.hash_pk
		WHERE h.hash = ?
	`, []byte(hash))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_peers_for_hash: %w", err)
	}
	defer rows.Close()
	return scanPeers(rows)
}

func scanPeers(rows *sql.Rows) ([]storage.Peer, error) {
	out := []storage.Peer{}
	for rows.Next() {
		var addrStr string
		var dateAdded, lastSeen int64
		if err := rows.Scan(&addrStr, &dateAdded, &lastSeen); err != nil {
			return nil, err
		}
		addr, err := address.Parse(addrStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: stored address %q: %w", addrStr, err)
		}
		out = append(out, storage.Peer{
			Address:   addr,
			DateAdded: time.Unix(dateAdded, 0),
			LastSeen:  time.Unix(lastSeen, 0),
		})
	}
	return out, rows.Err()
}

func (s *Store) GetHashes() ([]storage.HashCount, error) {
	rows, err := s.db.Query(`
		SELECT h.hash, COUNT(ph.peer_pk)
		FROM hashes h
		LEFT JOIN peer_hashes ph ON ph.hash_pk = h.pk
		GROUP BY h.pk
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_hashes: %w", err)
	}
	defer rows.Close()

	out := []storage.HashCount{}
	for rows.Next() {
		var h []byte
		var count int
		if err := rows.Scan(&h, &count); err != nil {
			return nil, err
		}
		out = append(out, storage.HashCount{Hash: storage.Hash(h), Count: count})
	}
	return out, rows.Err()
}

func (s *Store) GetPeerCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM peers`).Scan(&n)
	return n, err
}

func (s *Store) GetHashCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM hashes`).Scan(&n)
	return n, err
}

// CleanupPeers removes every peer with last_seen < cutoff. Per spec
// §9's documented bug-compat note, the reported count is the combined
// row-change count of the peer_hashes unlink statement and the peers
// delete statement, not strictly the number of peers removed — a
// deliberately preserved quirk of the original implementation rather
// than a defect introduced here.
func (s *Store) CleanupPeers(cutoff time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res1, err := tx.Exec(`
		DELETE FROM peer_hashes WHERE peer_pk IN (SELECT pk FROM peers WHERE last_seen < ?)
	`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup_peers: unlink: %w", err)
	}
	n1, _ := res1.RowsAffected()

	res2, err := tx.Exec(`DELETE FROM peers WHERE last_seen < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup_peers: delete: %w", err)
	}
	n2, _ := res2.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n1 + n2), nil
}

// CleanupHashes removes every hash with no remaining links. Returns
// the exact number of hashes removed, via a single statement with
// RETURNING rather than the row-count conflation spec §9 flags for
// cleanup_peers — nothing in spec §9 calls out cleanup_hashes as
// having that quirk, so it is not replicated here.
func (s *Store) CleanupHashes() (int, error) {
	rows, err := s.db.Query(`
		DELETE FROM hashes
		WHERE pk NOT IN (SELECT DISTINCT hash_pk FROM peer_hashes)
		RETURNING pk
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup_hashes: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
