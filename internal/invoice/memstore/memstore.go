// Package memstore keeps invoices in process memory. Status updates are
// serialized per invoice; unrelated invoices never wait on each other's
// transitions.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
)

type entry struct {
	mu  sync.Mutex
	inv invoice.Invoice
}

type Store struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*entry
	seq      map[uuid.UUID]int64
	// refs maps lower-cased verified transaction hashes to their invoice.
	refs map[string]uuid.UUID
}

func New() *Store {
	return &Store{
		invoices: make(map[uuid.UUID]*entry),
		seq:      make(map[uuid.UUID]int64),
		refs:     make(map[string]uuid.UUID),
	}
}

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[inv.OwnerID]++

	inv.ID = uuid.New()
	inv.Number = invoice.FormatNumber(inv.CreatedAt.Year(), s.seq[inv.OwnerID])

	s.invoices[inv.ID] = &entry{inv: clone(inv)}

	return nil
}

func (s *Store) GetInvoice(_ context.Context, ownerID, id uuid.UUID) (*invoice.Invoice, error) {
	e := s.lookup(ownerID, id)
	if e == nil {
		return nil, invoice.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inv := clone(&e.inv)

	return &inv, nil
}

func (s *Store) ListInvoices(_ context.Context, ownerID uuid.UUID) ([]*invoice.Invoice, error) {
	var result []*invoice.Invoice

	for _, e := range s.entries() {
		e.mu.Lock()
		if e.inv.OwnerID == ownerID {
			inv := clone(&e.inv)
			result = append(result, &inv)
		}
		e.mu.Unlock()
	}

	slices.SortFunc(result, func(a, b *invoice.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

func (s *Store) FindByTxHash(_ context.Context, txHash string) (*invoice.Invoice, error) {
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.inv.TxHash != nil && strings.EqualFold(*e.inv.TxHash, txHash) {
			inv := clone(&e.inv)
			e.mu.Unlock()

			return &inv, nil
		}
		e.mu.Unlock()
	}

	return nil, invoice.ErrNotFound
}

func (s *Store) UpdateStatus(_ context.Context, upd invoice.StatusUpdate) (*invoice.Invoice, error) {
	e := s.lookup(upd.OwnerID, upd.ID)
	if e == nil {
		return nil, invoice.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !slices.Contains(upd.From, e.inv.Status) {
		return nil, invoice.ErrStatusConflict
	}

	// Lock order is entry then map; no path takes them the other way round.
	if upd.VerificationDetails != nil && upd.TxHash != nil {
		if !s.reserve(strings.ToLower(*upd.TxHash), upd.ID) {
			return nil, invoice.ErrDuplicateReference
		}
	}

	e.inv.Status = upd.To

	if upd.PaidAt != nil {
		e.inv.PaidAt = new(*upd.PaidAt)
	}

	if upd.TxHash != nil {
		e.inv.TxHash = new(*upd.TxHash)
	}

	if upd.VerificationDetails != nil {
		e.inv.VerificationDetails = slices.Clone(upd.VerificationDetails)
	}

	inv := clone(&e.inv)

	return &inv, nil
}

func (s *Store) MarkOverdue(_ context.Context, ids []uuid.UUID, now time.Time) error {
	s.mu.RLock()
	entries := make([]*entry, 0, len(ids))

	for _, id := range ids {
		if e, ok := s.invoices[id]; ok {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.inv.Status == invoice.StatusPending && e.inv.DueDate.Before(now) {
			e.inv.Status = invoice.StatusOverdue
		}
		e.mu.Unlock()
	}

	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, ownerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.invoices[id]
	if !ok || e.inv.OwnerID != ownerID {
		return nil
	}

	delete(s.invoices, id)

	for ref, owner := range s.refs {
		if owner == id {
			delete(s.refs, ref)
		}
	}

	return nil
}

// Len reports the number of stored invoices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.invoices)
}

// reserve claims ref for id unless another invoice already holds it.
func (s *Store) reserve(ref string, id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.refs[ref]; ok && holder != id {
		return false
	}

	s.refs[ref] = id

	return true
}

// entries snapshots the stored records so per-invoice locks are never taken
// while holding the map lock.
func (s *Store) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(s.invoices))
	for _, e := range s.invoices {
		entries = append(entries, e)
	}

	return entries
}

func (s *Store) lookup(ownerID, id uuid.UUID) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.invoices[id]
	if !ok || e.inv.OwnerID != ownerID {
		return nil
	}

	return e
}

// clone deep-copies inv so callers never share slices or pointers with the
// stored record.
func clone(inv *invoice.Invoice) invoice.Invoice {
	c := *inv
	c.Items = slices.Clone(inv.Items)
	c.VerificationDetails = slices.Clone(inv.VerificationDetails)

	if inv.CryptoCurrency != nil {
		c.CryptoCurrency = new(*inv.CryptoCurrency)
	}

	if inv.CryptoAmount != nil {
		c.CryptoAmount = new(*inv.CryptoAmount)
	}

	if inv.WalletAddress != nil {
		c.WalletAddress = new(*inv.WalletAddress)
	}

	if inv.PaidAt != nil {
		c.PaidAt = new(*inv.PaidAt)
	}

	if inv.TxHash != nil {
		c.TxHash = new(*inv.TxHash)
	}

	return c
}

var _ invoice.Repository = (*Store)(nil)
