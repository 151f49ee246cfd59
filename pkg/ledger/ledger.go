// Package ledger implements the token economy: an append-only transaction
// log in SQLite with cached per-player balances. The cache is rebuilt from
// the log on open and must always reconcile with it.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

var ErrInsufficientTokens = errors.New("insufficient tokens")

// Entry is one row of the append-only log.
type Entry struct {
	Seq    int64
	Actor  gamedb.DBRef
	Delta  int
	Reason string
	Time   time.Time
}

// Ledger tracks token balances backed by an append-only SQLite log.
// All balance mutations are serialized under mu, so a read-modify-write
// (the insufficient-funds check plus the debit) is atomic per account.
type Ledger struct {
	mu       sync.Mutex
	db       *sql.DB
	balances map[gamedb.DBRef]int
	insert   *sql.Stmt
}

// Open opens (or creates) a ledger database and replays the log into the
// balance cache. Pass ":memory:" for an ephemeral ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		actor INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		ts INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	l := &Ledger{db: db, balances: make(map[gamedb.DBRef]int)}

	rows, err := db.Query("SELECT actor, delta FROM entries ORDER BY seq")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("replaying ledger: %w", err)
	}
	n := 0
	for rows.Next() {
		var actor, delta int
		if err := rows.Scan(&actor, &delta); err != nil {
			rows.Close()
			db.Close()
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		l.balances[gamedb.DBRef(actor)] += delta
		n++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("replaying ledger: %w", err)
	}

	l.insert, err = db.Prepare("INSERT INTO entries (actor, delta, reason, ts) VALUES (?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}

	if n > 0 {
		log.Printf("LEDGER: replayed %d entries for %d accounts", n, len(l.balances))
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insert != nil {
		l.insert.Close()
	}
	return l.db.Close()
}

// Balance returns the current token balance for an actor.
func (l *Ledger) Balance(actor gamedb.DBRef) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[actor]
}

// append writes one entry and updates the cache. Caller holds mu.
func (l *Ledger) append(actor gamedb.DBRef, delta int, reason string) error {
	if _, err := l.insert.Exec(int(actor), delta, reason, time.Now().Unix()); err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	l.balances[actor] += delta
	return nil
}

// Charge debits tokens. It fails with ErrInsufficientTokens, writing
// nothing, when the balance would go negative. amount must be positive.
func (l *Ledger) Charge(actor gamedb.DBRef, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount %d must be positive", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[actor] < amount {
		return fmt.Errorf("charge %d from #%d (balance %d): %w", amount, actor, l.balances[actor], ErrInsufficientTokens)
	}
	return l.append(actor, -amount, reason)
}

// Credit adds tokens unconditionally. Used for refunds, grants and the
// starting stake.
func (l *Ledger) Credit(actor gamedb.DBRef, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount %d must be positive", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(actor, amount, reason)
}

// Transfer moves tokens between accounts as two log entries, debit first.
func (l *Ledger) Transfer(from, to gamedb.DBRef, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount %d must be positive", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("transfer %d from #%d (balance %d): %w", amount, from, l.balances[from], ErrInsufficientTokens)
	}
	if err := l.append(from, -amount, reason); err != nil {
		return err
	}
	return l.append(to, amount, reason)
}

// Reservation holds tokens debited ahead of a side effect. Commit keeps the
// debit; Release refunds it. Exactly one of the two is honored.
type Reservation struct {
	l      *Ledger
	Actor  gamedb.DBRef
	Amount int
	Reason string

	mu   sync.Mutex
	done bool
}

// Reserve debits tokens up front for a pending side effect. If the side
// effect later fails or is abandoned, Release returns them.
func (l *Ledger) Reserve(actor gamedb.DBRef, amount int, reason string) (*Reservation, error) {
	if amount == 0 {
		return &Reservation{l: l, Actor: actor, Reason: reason}, nil
	}
	if err := l.Charge(actor, amount, "reserve:"+reason); err != nil {
		return nil, err
	}
	return &Reservation{l: l, Actor: actor, Amount: amount, Reason: reason}, nil
}

// Commit finalizes the reservation; the tokens stay spent.
func (r *Reservation) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

// Release refunds the reserved tokens. Safe to call after Commit (no-op)
// and safe to call more than once.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	if r.Amount > 0 {
		if err := r.l.Credit(r.Actor, r.Amount, "release:"+r.Reason); err != nil {
			log.Printf("LEDGER: releasing reservation for #%d: %v", r.Actor, err)
		}
	}
}

// History returns the most recent entries for an actor, newest first.
func (l *Ledger) History(actor gamedb.DBRef, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query(
		"SELECT seq, actor, delta, reason, ts FROM entries WHERE actor = ? ORDER BY seq DESC LIMIT ?",
		int(actor), limit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var actor64, ts int64
		if err := rows.Scan(&e.Seq, &actor64, &e.Delta, &e.Reason, &ts); err != nil {
			return nil, err
		}
		e.Actor = gamedb.DBRef(actor64)
		e.Time = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reconcile verifies that every cached balance equals the sum of its log
// entries. Returns an error naming the first mismatched account.
func (l *Ledger) Reconcile() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query("SELECT actor, SUM(delta) FROM entries GROUP BY actor")
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}
	defer rows.Close()
	seen := make(map[gamedb.DBRef]bool)
	for rows.Next() {
		var actor, sum int
		if err := rows.Scan(&actor, &sum); err != nil {
			return err
		}
		ref := gamedb.DBRef(actor)
		seen[ref] = true
		if l.balances[ref] != sum {
			return fmt.Errorf("account #%d: cached %d, log %d", actor, l.balances[ref], sum)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for ref, bal := range l.balances {
		if !seen[ref] && bal != 0 {
			return fmt.Errorf("account #%d: cached %d, no log entries", ref, bal)
		}
	}
	return nil
}
