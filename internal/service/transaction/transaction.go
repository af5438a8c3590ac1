// Package transaction moves money between wallets: artwork purchases with
// platform commission, deposits, withdrawals and admin refunds.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/metrics"
	"xhsmarket/pkg/rbac"
)

type Filter struct {
	UserID string
	Type   string
	Status string
}

type Options struct {
	CommissionPercent int64
	PlatformAccountID string
	Currency          string
}

// PurchaseResult holds the three ledger rows of one sale.
type PurchaseResult struct {
	Purchase   model.Transaction  `json:"purchase"`
	Sale       model.Transaction  `json:"sale"`
	Commission *model.Transaction `json:"commission,omitempty"`
	Balance    int64              `json:"balance"`
}

type Service struct {
	transactions store.Table[model.Transaction]
	users        store.Table[model.User]
	artworks     store.Table[model.Artwork]
	publisher    event.Publisher
	opts         Options
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(st *store.Store, publisher event.Publisher, opts Options, logger *zap.Logger) *Service {
	if opts.Currency == "" {
		opts.Currency = "CNY"
	}
	return &Service{
		transactions: st.Transactions,
		users:        st.Users,
		artworks:     st.Artworks,
		publisher:    publisher,
		opts:         opts,
		logger:       logger,
		now:          time.Now,
	}
}

// Commission is the platform's cut of price, rounded down.
func Commission(price, percent int64) int64 {
	if price <= 0 || percent <= 0 {
		return 0
	}
	return price * percent / 100
}

// FormatAmount renders minor units as e.g. "¥1,250.00".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s¥%s.%02d", sign, humanize.Comma(amount/100), amount%100)
}

func (f Filter) Matches(t model.Transaction) bool {
	return (f.UserID == "" || t.UserID == f.UserID) &&
		(f.Type == "" || t.Type == f.Type) &&
		(f.Status == "" || t.Status == f.Status)
}

// List returns matching transactions, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Transaction, error) {
	items, err := store.Filter(ctx, s.transactions, f.Matches)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Service) newTx(userID, txType string, amount int64, desc, relatedID, counterparty string, at time.Time) model.Transaction {
	return model.Transaction{
		ID:             service.NewID(),
		UserID:         userID,
		Type:           txType,
		Amount:         amount,
		Currency:       s.opts.Currency,
		Status:         model.TxStatusCompleted,
		Description:    desc,
		RelatedID:      relatedID,
		CounterpartyID: counterparty,
		CreatedAt:      at,
	}
}

// Purchase buys an artwork for its listed price. Balances move through
// Users.Update so concurrent writers of the same user row are not lost.
func (s *Service) Purchase(ctx context.Context, buyerID, artworkID string) (PurchaseResult, error) {
	art, err := s.artworks.Get(ctx, artworkID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !art.ForSale || art.Price <= 0 {
		return PurchaseResult{}, service.Conflict("artwork is not for sale")
	}
	if art.ArtistID == buyerID {
		return PurchaseResult{}, service.Invalid("cannot buy your own artwork")
	}
	seller, err := s.users.Get(ctx, art.ArtistID)
	if err != nil {
		return PurchaseResult{}, err
	}

	buyer, err := s.debit(ctx, buyerID, art.Price, func(balance int64) error {
		return fmt.Errorf("%w: balance %s, price %s",
			service.ErrInsufficientFunds, FormatAmount(balance), FormatAmount(art.Price))
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	commission := Commission(art.Price, s.opts.CommissionPercent)
	proceeds := art.Price - commission
	now := s.now().UTC()

	res := PurchaseResult{}
	res.Purchase = s.newTx(buyer.ID, model.TxPurchase, -art.Price, "Purchase: "+art.Title, art.ID, seller.ID, now)
	res.Sale = s.newTx(seller.ID, model.TxSale, proceeds, "Sale: "+art.Title, res.Purchase.ID, buyer.ID, now)

	if err := s.credit(ctx, seller.ID, proceeds); err != nil {
		if rerr := s.credit(ctx, buyer.ID, art.Price); rerr != nil {
			s.logger.Error("Failed to return funds to buyer", zap.String("buyer_id", buyer.ID), zap.Error(rerr))
		}
		return PurchaseResult{}, err
	}
	if err := s.transactions.Put(ctx, res.Purchase); err != nil {
		return PurchaseResult{}, err
	}
	if err := s.transactions.Put(ctx, res.Sale); err != nil {
		return PurchaseResult{}, err
	}

	if commission > 0 {
		c := s.newTx(s.opts.PlatformAccountID, model.TxCommission, commission, "Commission: "+art.Title, res.Purchase.ID, "", now)
		if err := s.credit(ctx, s.opts.PlatformAccountID, commission); err != nil {
			return PurchaseResult{}, err
		}
		if err := s.transactions.Put(ctx, c); err != nil {
			return PurchaseResult{}, err
		}
		res.Commission = &c
	}
	res.Balance = buyer.Balance

	metrics.AddTransactionVolume(model.TxPurchase, art.Price)
	if err := s.publisher.PublishWithContext(ctx, event.TransactionCompleted, event.TransactionCompletedPayload{
		PurchaseID: res.Purchase.ID,
		ArtworkID:  art.ID,
		Title:      art.Title,
		BuyerID:    buyer.ID,
		SellerID:   seller.ID,
		Price:      art.Price,
		Commission: commission,
		Currency:   s.opts.Currency,
		OccurredAt: now,
	}); err != nil {
		s.logger.Error("Failed to publish event", zap.String("routing_key", event.TransactionCompleted), zap.Error(err))
	}

	s.logger.Info("Artwork purchased",
		zap.String("artwork_id", art.ID),
		zap.String("buyer_id", buyer.ID),
		zap.String("seller_id", seller.ID),
		zap.Int64("price", art.Price),
		zap.Int64("commission", commission),
	)
	return res, nil
}

// credit adjusts a balance; a missing platform account is tolerated.
func (s *Service) credit(ctx context.Context, userID string, amount int64) error {
	_, err := s.users.Update(ctx, userID, func(u *model.User) error {
		u.Balance += amount
		return nil
	})
	if errors.Is(err, store.ErrNotFound) && userID == s.opts.PlatformAccountID {
		return nil
	}
	return err
}

// debit takes amount from the balance inside one row update; short builds
// the error when the balance does not cover it.
func (s *Service) debit(ctx context.Context, userID string, amount int64, short func(balance int64) error) (model.User, error) {
	return s.users.Update(ctx, userID, func(u *model.User) error {
		if u.Balance < amount {
			return short(u.Balance)
		}
		u.Balance -= amount
		return nil
	})
}

func (s *Service) Deposit(ctx context.Context, userID string, amount int64) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, service.Invalid("amount must be positive")
	}
	if err := s.credit(ctx, userID, amount); err != nil {
		return model.Transaction{}, err
	}
	tx := s.newTx(userID, model.TxDeposit, amount, "Wallet top-up", "", "", s.now().UTC())
	if err := s.transactions.Put(ctx, tx); err != nil {
		return model.Transaction{}, err
	}
	metrics.AddTransactionVolume(model.TxDeposit, amount)
	return tx, nil
}

func (s *Service) Withdraw(ctx context.Context, userID string, amount int64) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, service.Invalid("amount must be positive")
	}
	_, err := s.debit(ctx, userID, amount, func(balance int64) error {
		return fmt.Errorf("%w: balance %s", service.ErrInsufficientFunds, FormatAmount(balance))
	})
	if err != nil {
		return model.Transaction{}, err
	}
	tx := s.newTx(userID, model.TxWithdrawal, -amount, "Withdrawal to bank account", "", "", s.now().UTC())
	if err := s.transactions.Put(ctx, tx); err != nil {
		return model.Transaction{}, err
	}
	metrics.AddTransactionVolume(model.TxWithdrawal, amount)
	return tx, nil
}

// Refund reverses a completed purchase and the rows booked with it.
func (s *Service) Refund(ctx context.Context, actor service.Actor, transactionID string) ([]model.Transaction, error) {
	if err := actor.Require(rbac.PermissionRefund); err != nil {
		return nil, err
	}

	purchase, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if purchase.Type != model.TxPurchase || purchase.Status != model.TxStatusCompleted {
		return nil, service.Invalid("only completed purchases can be refunded")
	}

	linked, err := store.Filter(ctx, s.transactions, func(t model.Transaction) bool {
		return t.RelatedID == purchase.ID
	})
	if err != nil {
		return nil, err
	}
	for _, t := range linked {
		if t.Type == model.TxRefund {
			return nil, service.Conflict("purchase already refunded")
		}
	}

	now := s.now().UTC()
	refunds := []model.Transaction{
		s.newTx(purchase.UserID, model.TxRefund, -purchase.Amount, "Refund: "+purchase.Description, purchase.ID, purchase.CounterpartyID, now),
	}
	for _, t := range linked {
		if t.Type != model.TxSale && t.Type != model.TxCommission {
			continue
		}
		refunds = append(refunds, s.newTx(t.UserID, model.TxRefund, -t.Amount, "Reversal: "+t.Description, purchase.ID, purchase.UserID, now))
	}

	// the buyer's row claims the refund; a second refund of the same
	// purchase collides here
	err = s.transactions.Insert(ctx, refunds[0], func(t model.Transaction) bool {
		return t.Type == model.TxRefund && t.RelatedID == purchase.ID
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, service.Conflict("purchase already refunded")
	}
	if err != nil {
		return nil, err
	}
	for i, r := range refunds {
		if err := s.credit(ctx, r.UserID, r.Amount); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		if err := s.transactions.Put(ctx, r); err != nil {
			return nil, err
		}
	}
	metrics.AddTransactionVolume(model.TxRefund, -purchase.Amount)

	s.logger.Info("Purchase refunded",
		zap.String("transaction_id", purchase.ID),
		zap.String("by", actor.UserID),
		zap.Int("rows", len(refunds)),
	)
	return refunds, nil
}

// Invoices lists one invoice per purchase or deposit, newest first.
func (s *Service) Invoices(ctx context.Context, userID string) ([]model.Invoice, error) {
	txs, err := s.List(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}
	refunded := map[string]bool{}
	for _, t := range txs {
		if t.Type == model.TxRefund {
			refunded[t.RelatedID] = true
		}
	}

	out := []model.Invoice{}
	for _, t := range txs {
		if t.Type != model.TxPurchase && t.Type != model.TxDeposit {
			continue
		}
		status := model.InvoicePaid
		switch {
		case refunded[t.ID] || t.Status == model.TxStatusFailed:
			status = model.InvoiceVoid
		case t.Status == model.TxStatusPending:
			status = model.InvoicePending
		}
		amount := t.Amount
		if amount < 0 {
			amount = -amount
		}
		out = append(out, model.Invoice{
			ID:            "inv-" + t.ID,
			TransactionID: t.ID,
			UserID:        t.UserID,
			Amount:        amount,
			Currency:      t.Currency,
			Status:        status,
			Description:   t.Description,
			IssuedAt:      t.CreatedAt,
		})
	}
	return out, nil
}

// Wallet returns the balance and lifetime totals of completed rows.
func (s *Service) Wallet(ctx context.Context, userID string) (model.Wallet, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return model.Wallet{}, err
	}
	txs, err := s.List(ctx, Filter{UserID: userID, Status: model.TxStatusCompleted})
	if err != nil {
		return model.Wallet{}, err
	}
	w := model.Wallet{UserID: userID, Balance: u.Balance, Currency: s.opts.Currency}
	for _, t := range txs {
		if t.Amount >= 0 {
			w.TotalIn += t.Amount
		} else {
			w.TotalOut -= t.Amount
		}
	}
	return w, nil
}
