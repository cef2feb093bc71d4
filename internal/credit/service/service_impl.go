package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/credit/domain"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	"github.com/smallbiznis/tally/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Service
	Telemetry *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Service
	telemetry *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("credit.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		telemetry: p.Telemetry,
	}
}

func (s *Service) Add(ctx context.Context, req domain.AddCreditsRequest) (*domain.CreditBalance, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: req.CustomerID}); err != nil {
		return nil, domain.ErrCustomerNotFound
	}

	if req.Amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	balance := &domain.CreditBalance{
		ID:              s.genID.Generate(),
		CustomerID:      customerID,
		Amount:          req.Amount,
		RemainingAmount: req.Amount,
		CreditType:      domain.NormalizeCreditType(req.CreditType),
		Status:          domain.CreditStatusActive,
		Description:     strings.TrimSpace(req.Description),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ExpiresInDays != nil && *req.ExpiresInDays > 0 {
		expiresAt := now.AddDate(0, 0, *req.ExpiresInDays)
		balance.ExpiresAt = &expiresAt
	}
	if req.SubscriptionID != nil {
		id, err := s.parseID(*req.SubscriptionID)
		if err != nil {
			return nil, err
		}
		balance.SubscriptionID = &id
	}
	if req.InvoiceID != nil {
		id, err := s.parseID(*req.InvoiceID)
		if err != nil {
			return nil, err
		}
		balance.InvoiceID = &id
	}

	grantDescription := balance.Description
	if grantDescription == "" {
		grantDescription = "Added credits"
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertBalance(ctx, tx, balance); err != nil {
			return err
		}
		return s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
			ID:              s.genID.Generate(),
			CreditBalanceID: balance.ID,
			Amount:          req.Amount,
			Description:     fmt.Sprintf("Initial credit: %s", grantDescription),
			CreatedAt:       now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("credits added",
		zap.String("customer_id", customerID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("credit_type", string(balance.CreditType)),
	)
	return balance, nil
}

func (s *Service) Available(ctx context.Context, customerID snowflake.ID) (decimal.Decimal, error) {
	balances, err := s.repo.ListUsable(ctx, s.db, customerID, s.clock.Now(), false)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, balance := range balances {
		total = total.Add(balance.RemainingAmount)
	}
	return total, nil
}

func (s *Service) ListBalances(ctx context.Context, req domain.ListBalancesRequest) ([]domain.CreditBalance, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCustomer(ctx, s.db, customerID, req.IncludeInactive, s.clock.Now())
}

func (s *Service) ListTransactions(ctx context.Context, balanceID string) ([]domain.CreditTransaction, error) {
	id, err := s.parseID(balanceID)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.FindBalanceByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, domain.ErrBalanceNotFound
	}
	return s.repo.ListTransactions(ctx, s.db, id)
}

// ApplyToInvoice draws from usable balances soonest-expiring first
// until the invoice amount is covered or credit runs out. It runs on
// the caller's transaction handle so the draws commit or roll back
// with the invoice.
func (s *Service) ApplyToInvoice(ctx context.Context, tx *gorm.DB, customerID, invoiceID snowflake.ID, invoiceNumber string, amount decimal.Decimal) (decimal.Decimal, []domain.CreditApplication, error) {
	remaining := amount
	if remaining.Sign() <= 0 {
		return maxZero(remaining), nil, nil
	}

	balances, err := s.repo.ListUsable(ctx, tx, customerID, s.clock.Now(), true)
	if err != nil {
		return decimal.Zero, nil, err
	}

	var applications []domain.CreditApplication
	for i := range balances {
		if remaining.Sign() <= 0 {
			break
		}
		balance := &balances[i]

		applyAmount := decimal.Min(balance.RemainingAmount, remaining)
		if applyAmount.Sign() <= 0 {
			continue
		}

		balance.RemainingAmount = balance.RemainingAmount.Sub(applyAmount)
		if balance.RemainingAmount.Sign() <= 0 {
			balance.Status = domain.CreditStatusConsumed
		}
		balance.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBalance(ctx, tx, balance); err != nil {
			return decimal.Zero, nil, err
		}

		invoiceRef := invoiceID
		if err := s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
			ID:              s.genID.Generate(),
			CreditBalanceID: balance.ID,
			Amount:          applyAmount.Neg(),
			Description:     fmt.Sprintf("Applied to invoice %s", invoiceNumber),
			InvoiceID:       &invoiceRef,
			CreatedAt:       s.clock.Now(),
		}); err != nil {
			return decimal.Zero, nil, err
		}

		description := balance.Description
		if description == "" {
			description = "Credit balance"
		}
		applications = append(applications, domain.CreditApplication{
			BalanceID:   balance.ID,
			CreditType:  balance.CreditType,
			Description: description,
			Amount:      applyAmount,
		})
		s.telemetry.ObserveCreditDraw()
		remaining = remaining.Sub(applyAmount)
	}

	return maxZero(remaining), applications, nil
}

func (s *Service) ApplyManually(ctx context.Context, req domain.ApplyCreditsRequest) error {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return err
	}
	if req.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balances, err := s.repo.ListUsable(ctx, tx, customerID, s.clock.Now(), true)
		if err != nil {
			return err
		}

		available := decimal.Zero
		for _, balance := range balances {
			available = available.Add(balance.RemainingAmount)
		}
		if available.LessThan(req.Amount) {
			return domain.ErrInsufficientCredits
		}

		remaining := req.Amount
		for i := range balances {
			if remaining.Sign() <= 0 {
				break
			}
			balance := &balances[i]

			applyAmount := decimal.Min(balance.RemainingAmount, remaining)
			balance.RemainingAmount = balance.RemainingAmount.Sub(applyAmount)
			if balance.RemainingAmount.Sign() <= 0 {
				balance.Status = domain.CreditStatusConsumed
			}
			balance.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdateBalance(ctx, tx, balance); err != nil {
				return err
			}

			if err := s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
				ID:              s.genID.Generate(),
				CreditBalanceID: balance.ID,
				Amount:          applyAmount.Neg(),
				Description:     req.Description,
				InvoiceID:       req.InvoiceID,
				CreatedAt:       s.clock.Now(),
			}); err != nil {
				return err
			}
			s.telemetry.ObserveCreditDraw()
			remaining = remaining.Sub(applyAmount)
		}
		return nil
	})
}

// ExpireCredits sweeps overdue balances. What remained on each is
// written off with a negative transaction before the status flips.
func (s *Service) ExpireCredits(ctx context.Context) (int, error) {
	now := s.clock.Now()
	count := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balances, err := s.repo.ListExpirable(ctx, tx, now)
		if err != nil {
			return err
		}
		for i := range balances {
			balance := &balances[i]

			if balance.RemainingAmount.Sign() > 0 {
				if err := s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
					ID:              s.genID.Generate(),
					CreditBalanceID: balance.ID,
					Amount:          balance.RemainingAmount.Neg(),
					Description:     "Credits expired",
					CreatedAt:       now,
				}); err != nil {
					return err
				}
			}

			balance.RemainingAmount = decimal.Zero
			balance.Status = domain.CreditStatusExpired
			balance.UpdatedAt = now
			if err := s.repo.UpdateBalance(ctx, tx, balance); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.telemetry.ObserveCreditExpired(count)
		s.log.Info("credits expired", zap.Int("balances", count))
	}
	return count, nil
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
