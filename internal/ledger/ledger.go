package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/httpmw"
)

// Ledger errors, matched by callers to pick an HTTP status.
var (
	ErrSameWallet         = errors.New("ledger: from and to wallets must differ")
	ErrNonPositiveAmount  = errors.New("ledger: amount must be positive")
	ErrDuplicateReference = errors.New("ledger: duplicate reference_id")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
)

// Monetary policy constants, all on integer milli-units.
const (
	FeeRate           = 0.05
	MinFee            = 1
	minTransferFloor  = 10
	demurrageRate     = 0.02
	demurrageExemptAt = 100 // balance > 100 is subject to demurrage; == 100 is exempt
)

// Ledger is the double-entry bookkeeping engine. Concurrent transfers
// serialize through per-wallet locks acquired in ascending user-id
// order — the same KeyedMutex pattern the gateway uses for per-key
// request coalescing, applied here to avoid the classic two-account
// deadlock, with the SQL transaction itself as the real source of
// truth and the database's own deadlock detector as a backstop, never
// the primary control.
type Ledger struct {
	db    *sql.DB
	log   zerolog.Logger
	locks *httpmw.KeyedMutex
}

// New wraps an already-migrated database handle.
func New(db *sql.DB, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, log: log, locks: httpmw.NewKeyedMutex()}
}

// walletKey zero-pads the id so LockMulti's string sort matches
// ascending numeric user-id order.
func walletKey(userID int64) string {
	return fmt.Sprintf("%020d", userID)
}

// Transfer moves amount from `from` to `to`, double-entry, per the
// primitive described for the core ledger operation.
func (l *Ledger) Transfer(from, to int64, amount int64, txType TransactionType, description string, referenceID *string) (string, error) {
	if from == to {
		return "", ErrSameWallet
	}
	if amount <= 0 {
		return "", ErrNonPositiveAmount
	}

	l.locks.LockMulti(walletKey(from), walletKey(to))
	defer l.locks.UnlockMulti(walletKey(from), walletKey(to))

	txID := uuid.NewString()
	err := l.withTx(func(tx *sql.Tx) error {
		if referenceID != nil {
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE reference_id = ?`, *referenceID).Scan(&count); err != nil {
				return fmt.Errorf("check reference_id: %w", err)
			}
			if count > 0 {
				return ErrDuplicateReference
			}
		}

		fromWallet, err := getOrCreateWallet(tx, from)
		if err != nil {
			return err
		}
		toWallet, err := getOrCreateWallet(tx, to)
		if err != nil {
			return err
		}

		if from != SystemWalletID && fromWallet.Balance < amount {
			return ErrInsufficientFunds
		}

		now := time.Now()
		fromWallet.Balance -= amount
		toWallet.Balance += amount

		if err := updateWalletBalance(tx, fromWallet.UserID, fromWallet.Balance, now); err != nil {
			return err
		}
		if err := updateWalletBalance(tx, toWallet.UserID, toWallet.Balance, now); err != nil {
			return err
		}

		if err := insertEntry(tx, LedgerEntry{
			TransactionID: txID, WalletID: from, Amount: -amount, BalanceAfter: fromWallet.Balance,
			EntryType: EntryDebit, TransactionType: txType, Description: description,
			ReferenceID: referenceID, CounterpartyWalletID: &to, CreatedAt: now,
		}); err != nil {
			return err
		}
		// reference_id is unique across ledger_entries, so only the debit
		// row carries it.
		if err := insertEntry(tx, LedgerEntry{
			TransactionID: txID, WalletID: to, Amount: amount, BalanceAfter: toWallet.Balance,
			EntryType: EntryCredit, TransactionType: txType, Description: description,
			ReferenceID: nil, CounterpartyWalletID: &from, CreatedAt: now,
		}); err != nil {
			return err
		}

		if from == SystemWalletID {
			if _, err := tx.Exec(`UPDATE supply_stats SET total_issued = total_issued + ? WHERE id = 1`, amount); err != nil {
				return fmt.Errorf("bump total_issued: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		return "", err
	}
	return txID, nil
}

// Burn debits amount from user's wallet with no counterparty, raising
// SupplyStats.total_burned.
func (l *Ledger) Burn(user int64, amount int64, txType TransactionType, description string) (string, error) {
	if amount <= 0 {
		return "", ErrNonPositiveAmount
	}

	l.locks.Lock(walletKey(user))
	defer l.locks.Unlock(walletKey(user))

	txID := uuid.NewString()
	err := l.withTx(func(tx *sql.Tx) error {
		w, err := getOrCreateWallet(tx, user)
		if err != nil {
			return err
		}
		if user != SystemWalletID && w.Balance < amount {
			return ErrInsufficientFunds
		}

		now := time.Now()
		w.Balance -= amount
		if err := updateWalletBalance(tx, w.UserID, w.Balance, now); err != nil {
			return err
		}

		if err := insertEntry(tx, LedgerEntry{
			TransactionID: txID, WalletID: user, Amount: -amount, BalanceAfter: w.Balance,
			EntryType: EntryDebit, TransactionType: txType, Description: description, CreatedAt: now,
		}); err != nil {
			return err
		}

		if _, err := tx.Exec(`UPDATE supply_stats SET total_burned = total_burned + ? WHERE id = 1`, amount); err != nil {
			return fmt.Errorf("bump total_burned: %w", err)
		}
		return nil
	})

	if err != nil {
		return "", err
	}
	return txID, nil
}

func (l *Ledger) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func getOrCreateWallet(tx *sql.Tx, userID int64) (*Wallet, error) {
	var w Wallet
	err := tx.QueryRow(`SELECT user_id, balance, created_at, updated_at FROM wallets WHERE user_id = ?`, userID).
		Scan(&w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		now := time.Now()
		if _, err := tx.Exec(`INSERT INTO wallets (user_id, balance, created_at, updated_at) VALUES (?, 0, ?, ?)`, userID, now, now); err != nil {
			return nil, fmt.Errorf("create wallet %d: %w", userID, err)
		}
		return &Wallet{UserID: userID, Balance: 0, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %d: %w", userID, err)
	}
	return &w, nil
}

func updateWalletBalance(tx *sql.Tx, userID, balance int64, now time.Time) error {
	if _, err := tx.Exec(`UPDATE wallets SET balance = ?, updated_at = ? WHERE user_id = ?`, balance, now, userID); err != nil {
		return fmt.Errorf("update wallet %d balance: %w", userID, err)
	}
	return nil
}

func insertEntry(tx *sql.Tx, e LedgerEntry) error {
	_, err := tx.Exec(`INSERT INTO ledger_entries
		(transaction_id, wallet_id, amount, balance_after, entry_type, transaction_type, description, reference_id, counterparty_wallet_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.TransactionID, e.WalletID, e.Amount, e.BalanceAfter, string(e.EntryType), string(e.TransactionType),
		e.Description, e.ReferenceID, e.CounterpartyWalletID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetWallet returns the wallet for userID, creating it with a zero
// balance if it doesn't exist yet.
func (l *Ledger) GetWallet(userID int64) (*Wallet, error) {
	var w Wallet
	err := l.db.QueryRow(`SELECT user_id, balance, created_at, updated_at FROM wallets WHERE user_id = ?`, userID).
		Scan(&w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		now := time.Now()
		if _, err := l.db.Exec(`INSERT INTO wallets (user_id, balance, created_at, updated_at) VALUES (?, 0, ?, ?)`, userID, now, now); err != nil {
			return nil, fmt.Errorf("ledger: create wallet %d: %w", userID, err)
		}
		return &Wallet{UserID: userID, Balance: 0, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get wallet %d: %w", userID, err)
	}
	return &w, nil
}

// History returns a wallet's ledger entries, newest first.
func (l *Ledger) History(userID int64, limit, offset int) ([]*LedgerEntry, error) {
	rows, err := l.db.Query(`SELECT id, transaction_id, wallet_id, amount, balance_after, entry_type,
		transaction_type, description, reference_id, counterparty_wallet_id, created_at
		FROM ledger_entries WHERE wallet_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger: history %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var entryType, txType string
		var refID sql.NullString
		var cpWallet sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Amount, &e.BalanceAfter, &entryType,
			&txType, &e.Description, &refID, &cpWallet, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		e.EntryType = EntryType(entryType)
		e.TransactionType = TransactionType(txType)
		if refID.Valid {
			e.ReferenceID = &refID.String
		}
		if cpWallet.Valid {
			e.CounterpartyWalletID = &cpWallet.Int64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// EntryByTransactionID returns every entry sharing transactionID.
func (l *Ledger) EntryByTransactionID(transactionID string) ([]*LedgerEntry, error) {
	rows, err := l.db.Query(`SELECT id, transaction_id, wallet_id, amount, balance_after, entry_type,
		transaction_type, description, reference_id, counterparty_wallet_id, created_at
		FROM ledger_entries WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: lookup transaction %s: %w", transactionID, err)
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var entryType, txType string
		var refID sql.NullString
		var cpWallet sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Amount, &e.BalanceAfter, &entryType,
			&txType, &e.Description, &refID, &cpWallet, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		e.EntryType = EntryType(entryType)
		e.TransactionType = TransactionType(txType)
		if refID.Valid {
			e.ReferenceID = &refID.String
		}
		if cpWallet.Valid {
			e.CounterpartyWalletID = &cpWallet.Int64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Supply returns the current SupplyStats with circulating recomputed.
func (l *Ledger) Supply() (*SupplyStats, error) {
	var s SupplyStats
	if err := l.db.QueryRow(`SELECT total_issued, total_burned FROM supply_stats WHERE id = 1`).
		Scan(&s.TotalIssued, &s.TotalBurned); err != nil {
		return nil, fmt.Errorf("ledger: supply: %w", err)
	}
	s.Circulating = s.TotalIssued - s.TotalBurned
	return &s, nil
}

// TransferFee computes the P2P fee for amount: max(MIN_FEE, ceil(amount*FEE_RATE)).
func TransferFee(amount int64) int64 {
	fee := int64(math.Ceil(float64(amount) * FeeRate))
	if fee < MinFee {
		return MinFee
	}
	return fee
}

// MinimumTransfer computes max(10, circulating // 10_000).
func MinimumTransfer(circulating int64) int64 {
	floor := circulating / 10000
	if floor < minTransferFloor {
		return minTransferFloor
	}
	return floor
}

// IsDemurrageExempt reports whether balance is exempt from demurrage.
// A balance exactly equal to the exemption threshold is exempt.
func IsDemurrageExempt(balance int64) bool {
	return balance <= demurrageExemptAt
}

// DemurrageAmount computes floor(balance*0.02) for a non-exempt wallet.
func DemurrageAmount(balance int64) int64 {
	return int64(math.Floor(float64(balance) * demurrageRate))
}
