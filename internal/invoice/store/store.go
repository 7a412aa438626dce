package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
)

const (
	uniqueViolation   = "23505"
	verifiedTxHashKey = "invoices_verified_tx_hash_key"
)

const selectInvoiceColumns = `
	id, owner_id, number, issuer, client_name, client_email, client_address, client_tax_id,
	items, subtotal, tax_rate, tax, total, currency, crypto_currency, crypto_amount, wallet_address,
	status, note, created_at, due_date, paid_at, tx_hash, verification_details
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type partyRow struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
}

type itemRow struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unitPrice"`
	Total       int64           `json:"total"`
}

func encodeItems(items []invoice.Item) ([]byte, error) {
	rows := make([]itemRow, len(items))
	for i, it := range items {
		rows[i] = itemRow(it)
	}

	return json.Marshal(rows)
}

func decodeItems(data []byte) ([]invoice.Item, error) {
	var rows []itemRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	items := make([]invoice.Item, len(rows))
	for i, r := range rows {
		items[i] = invoice.Item(r)
	}

	return items, nil
}

// scanInvoice reads a row in selectInvoiceColumns order.
func scanInvoice(s scanner) (*invoice.Invoice, error) {
	var (
		inv                         invoice.Invoice
		issuer, items               []byte
		status                      string
		cryptoCurrency, wallet, ref sql.NullString
		cryptoAmount                decimal.NullDecimal
		paidAt                      sql.NullTime
		details                     []byte
	)

	if err := s.Scan(
		&inv.ID, &inv.OwnerID, &inv.Number, &issuer,
		&inv.Client.Name, &inv.Client.Email, &inv.Client.Address, &inv.Client.TaxID,
		&items, &inv.Subtotal, &inv.TaxRate, &inv.Tax, &inv.Total, &inv.Currency,
		&cryptoCurrency, &cryptoAmount, &wallet,
		&status, &inv.Note, &inv.CreatedAt, &inv.DueDate, &paidAt, &ref, &details,
	); err != nil {
		return nil, err
	}

	var p partyRow
	if err := json.Unmarshal(issuer, &p); err != nil {
		return nil, fmt.Errorf("decoding issuer: %w", err)
	}

	inv.Issuer = invoice.Party(p)

	decoded, err := decodeItems(items)
	if err != nil {
		return nil, fmt.Errorf("decoding items: %w", err)
	}

	inv.Items = decoded
	inv.Status = invoice.Status(status)

	if cryptoCurrency.Valid {
		inv.CryptoCurrency = &cryptoCurrency.String
	}

	if cryptoAmount.Valid {
		inv.CryptoAmount = &cryptoAmount.Decimal
	}

	if wallet.Valid {
		inv.WalletAddress = &wallet.String
	}

	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}

	if ref.Valid {
		inv.TxHash = &ref.String
	}

	if len(details) > 0 {
		inv.VerificationDetails = json.RawMessage(details)
	}

	return &inv, nil
}

// CreateInvoice takes the owner's next sequence value and inserts the
// invoice in one transaction, so a failed insert never burns a number.
func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	issuer, err := json.Marshal(partyRow(inv.Issuer))
	if err != nil {
		return fmt.Errorf("encoding issuer: %w", err)
	}

	items, err := encodeItems(inv.Items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	seqQuery := `
		INSERT INTO invoice_sequences (owner_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (owner_id) DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
		RETURNING last_seq
	`

	var seq int64
	if err := dbTx.QueryRowContext(ctx, seqQuery, inv.OwnerID).Scan(&seq); err != nil {
		return fmt.Errorf("allocating invoice number: %w", err)
	}

	number := invoice.FormatNumber(inv.CreatedAt.Year(), seq)

	query := `
		INSERT INTO invoices (
			owner_id, number, issuer, client_name, client_email, client_address, client_tax_id,
			items, subtotal, tax_rate, tax, total, currency, crypto_currency, crypto_amount, wallet_address,
			status, note, created_at, due_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	var cryptoAmount decimal.NullDecimal
	if inv.CryptoAmount != nil {
		cryptoAmount = decimal.NewNullDecimal(*inv.CryptoAmount)
	}

	var id uuid.UUID

	err = dbTx.QueryRowContext(ctx, query,
		inv.OwnerID, number, string(issuer),
		inv.Client.Name, inv.Client.Email, inv.Client.Address, inv.Client.TaxID,
		string(items), inv.Subtotal, inv.TaxRate, inv.Tax, inv.Total, inv.Currency,
		inv.CryptoCurrency, cryptoAmount, inv.WalletAddress,
		string(inv.Status), inv.Note, inv.CreatedAt, inv.DueDate,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	inv.ID = id
	inv.Number = number

	return nil
}

func (s *Store) GetInvoice(ctx context.Context, ownerID, id uuid.UUID) (*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + `
		FROM invoices
		WHERE id = $1 AND owner_id = $2`

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, ownerID uuid.UUID) ([]*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + `
		FROM invoices
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	return s.query(ctx, "listing invoices", query, ownerID)
}

// FindByTxHash prefers the invoice whose payment was verified against hash.
func (s *Store) FindByTxHash(ctx context.Context, txHash string) (*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + `
		FROM invoices
		WHERE lower(tx_hash) = lower($1)
		ORDER BY verification_details IS NULL, created_at DESC
		LIMIT 1`

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, txHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("finding invoice by transaction: %w", err)
	}

	return inv, nil
}

// UpdateStatus is a single conditional UPDATE; the status guard in the WHERE
// clause is what makes concurrent transitions safe.
func (s *Store) UpdateStatus(ctx context.Context, upd invoice.StatusUpdate) (*invoice.Invoice, error) {
	from := make([]string, len(upd.From))
	for i, st := range upd.From {
		from[i] = string(st)
	}

	query := `
		UPDATE invoices
		SET status = $4,
			paid_at = COALESCE($5::timestamptz, paid_at),
			tx_hash = COALESCE($6::text, tx_hash),
			verification_details = COALESCE($7::jsonb, verification_details)
		WHERE id = $1 AND owner_id = $2 AND status = ANY($3::text[])
		RETURNING ` + selectInvoiceColumns

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query,
		upd.ID, upd.OwnerID, from, string(upd.To),
		upd.PaidAt, upd.TxHash, nullJSON(upd.VerificationDetails),
	))
	if err == nil {
		return inv, nil
	}

	if isUniqueViolation(err, verifiedTxHashKey) {
		return nil, invoice.ErrDuplicateReference
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	if _, err := s.GetInvoice(ctx, upd.OwnerID, upd.ID); err != nil {
		return nil, err
	}

	return nil, invoice.ErrStatusConflict
}

func (s *Store) MarkOverdue(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `
		UPDATE invoices
		SET status = 'overdue'
		WHERE id = ANY($1::uuid[]) AND status = 'pending' AND due_date < $2
	`

	if _, err := s.db.ExecContext(ctx, query, keys, now); err != nil {
		return fmt.Errorf("marking invoices overdue: %w", err)
	}

	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM invoices WHERE id = $1 AND owner_id = $2`

	if _, err := s.db.ExecContext(ctx, query, id, ownerID); err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}

	return nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]*invoice.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}

		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoice rows: %w", err)
	}

	return invoices, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return string(raw)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

var _ invoice.Repository = (*Store)(nil)
