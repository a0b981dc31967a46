// Package dashboard is the composition root of one dashboard process: it
// owns the state holder and its reconciler and exposes the user actions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/jar-dashboard/internal/backup"
	"github.com/dvloznov/jar-dashboard/internal/cache"
	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
	"github.com/dvloznov/jar-dashboard/internal/reconcile"
	"github.com/dvloznov/jar-dashboard/internal/remote"
	"github.com/dvloznov/jar-dashboard/internal/state"
)

// RateEpsilon is the smallest rate change a refresh will commit.
var RateEpsilon = decimal.RequireFromString("0.0001")

// RoadmapPartners are the partners with a roadmap deposit form.
var RoadmapPartners = []domain.Partner{domain.PartnerJoey, domain.PartnerAlex, domain.PartnerRubinho}

// errUnchanged aborts an update that would not change anything.
var errUnchanged = errors.New("unchanged")

// Options configures a Service.
type Options struct {
	Debounce time.Duration
	Clock    clock.Clock
	Logger   zerolog.Logger
	// ConfigError is the reason remote sync is disabled, if it is.
	ConfigError error
	OnStatus    func(reconcile.Status)
}

// Service serves one dashboard.
type Service struct {
	holder    *state.Holder
	rec       *reconcile.Reconciler
	clock     clock.Clock
	log       zerolog.Logger
	configErr error
}

// New loads the last cached state (or defaults) and wires the reconciler.
// Call Start to begin syncing.
func New(c cache.Cache, store remote.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	log := opts.Logger.With().Str("component", "dashboard").Logger()

	initial, ok := domain.ApplicationState{}, false
	if c != nil {
		initial, ok = c.Read()
	}
	if ok {
		log.Info().Int("transactions", len(initial.Transactions)).Msg("loaded state from local cache")
	} else {
		initial = domain.Defaults(opts.Clock.Now())
	}

	holder := state.New(initial, opts.Clock)
	rec := reconcile.New(holder, c, store, reconcile.Options{
		Debounce: opts.Debounce,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		OnStatus: opts.OnStatus,
	})
	return &Service{
		holder:    holder,
		rec:       rec,
		clock:     opts.Clock,
		log:       log,
		configErr: opts.ConfigError,
	}
}

// Start begins listening to the remote document.
func (s *Service) Start(ctx context.Context) error {
	if s.configErr != nil {
		s.log.Warn().Err(s.configErr).Msg("remote sync disabled")
	}
	return s.rec.Start(ctx)
}

// Close pushes pending changes and stops syncing.
func (s *Service) Close(ctx context.Context) error {
	err := s.rec.Flush(ctx)
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		s.log.Warn().Err(err).Msg("final flush failed")
	}
	s.rec.Close()
	s.holder.Close()
	return err
}

// State returns a copy of the current state.
func (s *Service) State() domain.ApplicationState {
	st, _ := s.holder.Get()
	return st
}

// Status returns the sync indicator.
func (s *Service) Status() reconcile.Status {
	return s.rec.Status()
}

// ConfigError is non-nil when remote sync is disabled by configuration.
func (s *Service) ConfigError() error {
	return s.configErr
}

// Subscribe observes every committed change, local or remote.
func (s *Service) Subscribe(fn func(state.Change)) func() {
	return s.holder.Subscribe(fn)
}

func (s *Service) update(fn func(*domain.ApplicationState) error) error {
	_, _, err := s.holder.Update(fn)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// SetDollarRate sets the rate used for new transactions and snapshots.
func (s *Service) SetDollarRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return domain.ErrInvalidRate
	}
	return s.update(func(st *domain.ApplicationState) error {
		st.DollarRate = rate.InexactFloat64()
		return nil
	})
}

// RefreshRate applies a fetched rate unless it is within RateEpsilon of the
// current one.
func (s *Service) RefreshRate(_ context.Context, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return domain.ErrInvalidRate
	}
	return s.update(func(st *domain.ApplicationState) error {
		if rate.Sub(decimal.NewFromFloat(st.DollarRate)).Abs().LessThan(RateEpsilon) {
			return errUnchanged
		}
		st.DollarRate = rate.InexactFloat64()
		return nil
	})
}

// AddTransaction records a deposit or withdrawal at the current rate.
func (s *Service) AddTransaction(in domain.NewTransaction) (domain.Transaction, error) {
	var tx domain.Transaction
	err := s.update(func(st *domain.ApplicationState) error {
		var err error
		tx, err = st.AddTransaction(in, s.clock.Now())
		return err
	})
	return tx, err
}

// DeleteTransaction removes one transaction by id.
func (s *Service) DeleteTransaction(id string) error {
	return s.update(func(st *domain.ApplicationState) error {
		return st.DeleteTransaction(id)
	})
}

// RegisterWithdrawals books one withdrawal per partner with a positive
// amount in the withdrawals form, then clears those fields. An empty form
// changes nothing.
func (s *Service) RegisterWithdrawals() ([]domain.Transaction, error) {
	var booked []domain.Transaction
	err := s.update(func(st *domain.ApplicationState) error {
		booked = booked[:0]
		now := s.clock.Now()
		for _, p := range domain.Partners {
			field, ok := domain.WithdrawalDraftField(p)
			if !ok {
				continue
			}
			amount := domain.ParseCurrency(st.Drafts.Get(domain.DraftWithdrawals, field))
			if !amount.IsPositive() {
				continue
			}
			tx, err := st.AddTransaction(domain.NewTransaction{
				Type:      domain.TransactionWithdrawal,
				Partner:   p,
				AmountBRL: amount,
				Date:      now,
			}, now)
			if err != nil {
				return fmt.Errorf("withdrawal for %s: %w", p, err)
			}
			booked = append(booked, tx)
		}
		if len(booked) == 0 {
			return errUnchanged
		}
		for _, p := range domain.Partners {
			if field, ok := domain.WithdrawalDraftField(p); ok {
				if err := st.Drafts.Set(domain.DraftWithdrawals, field, ""); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booked, nil
}

// AddRoadmapDeposit books the deposit typed in a partner's roadmap form,
// dated by the form's date field, and clears the amount.
func (s *Service) AddRoadmapDeposit(p domain.Partner) (domain.Transaction, error) {
	if !isRoadmapPartner(p) {
		return domain.Transaction{}, fmt.Errorf("%w: %q has no roadmap", domain.ErrUnknownPartner, p)
	}
	var tx domain.Transaction
	err := s.update(func(st *domain.ApplicationState) error {
		amount := domain.ParseCurrency(st.Drafts.Get(domain.DraftRoadmap, string(p)))
		if !amount.IsPositive() {
			return domain.ErrInvalidAmount
		}
		now := s.clock.Now()
		date := now
		if raw := st.Drafts.Get(domain.DraftRoadmap, domain.RoadmapDateField(p)); raw != "" {
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidDate, raw)
			}
			date = d
		}
		var err error
		tx, err = st.AddTransaction(domain.NewTransaction{
			Type:      domain.TransactionDeposit,
			Partner:   p,
			AmountBRL: amount,
			Date:      date,
		}, now)
		if err != nil {
			return err
		}
		return st.Drafts.Set(domain.DraftRoadmap, string(p), "")
	})
	return tx, err
}

func isRoadmapPartner(p domain.Partner) bool {
	for _, rp := range RoadmapPartners {
		if rp == p {
			return true
		}
	}
	return false
}

// UpdateAccount edits the progress form of one account.
func (s *Service) UpdateAccount(id domain.AccountID, patch domain.AccountPatch) error {
	return s.update(func(st *domain.ApplicationState) error {
		return st.UpdateAccount(id, patch)
	})
}

// AddToStartDeposit books the account's additional deposit draft.
func (s *Service) AddToStartDeposit(id domain.AccountID) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.update(func(st *domain.ApplicationState) error {
		var err error
		amount, err = st.AddToStartDeposit(id)
		return err
	})
	return amount, err
}

// RegisterDay snapshots an account's balance under its current date.
func (s *Service) RegisterDay(id domain.AccountID, confirm bool) (domain.DailyRecord, error) {
	var rec domain.DailyRecord
	err := s.update(func(st *domain.ApplicationState) error {
		var err error
		rec, err = st.RegisterDay(id, confirm)
		return err
	})
	return rec, err
}

// DeleteDailyRecord removes a snapshot.
func (s *Service) DeleteDailyRecord(id domain.AccountID, date string) error {
	return s.update(func(st *domain.ApplicationState) error {
		return st.DeleteDailyRecord(id, date)
	})
}

// SetDraft stores in-progress form input.
func (s *Service) SetDraft(bucket, field, value string) error {
	return s.update(func(st *domain.ApplicationState) error {
		prev := st.Drafts.Get(bucket, field)
		if err := st.Drafts.Set(bucket, field, value); err != nil {
			return err
		}
		if prev == value {
			return errUnchanged
		}
		return nil
	})
}

// Reset wipes the dashboard back to defaults, keeping the current rate, and
// pushes immediately. The local reset stands even if the push fails.
func (s *Service) Reset(ctx context.Context) error {
	current, _ := s.holder.Get()
	fresh := domain.Defaults(s.clock.Now())
	fresh.DollarRate = current.DollarRate
	s.holder.Replace(fresh, state.OriginLocal)
	s.log.Info().Msg("state reset")
	return s.pushNow(ctx)
}

// Import replaces the state with a backup and pushes immediately.
// A malformed payload returns backup.ErrMalformedImport and changes nothing.
func (s *Service) Import(ctx context.Context, r io.Reader) error {
	imported, err := backup.Import(r, s.clock.Now())
	if err != nil {
		return err
	}
	s.holder.Replace(imported, state.OriginLocal)
	s.log.Info().Int("transactions", len(imported.Transactions)).Msg("state imported")
	return s.pushNow(ctx)
}

func (s *Service) pushNow(ctx context.Context) error {
	err := s.rec.Flush(ctx)
	if errors.Is(err, remote.ErrNotConfigured) {
		return nil
	}
	return err
}

// Export writes the current state as a backup.
func (s *Service) Export(w io.Writer) error {
	return backup.Export(w, s.State())
}

// ExportName is the file name for an export taken now.
func (s *Service) ExportName() string {
	return backup.FileName(s.clock.Now())
}

// ManualSave pushes the current state right away.
func (s *Service) ManualSave(ctx context.Context) error {
	return s.rec.ManualSave(ctx)
}

// Summary computes the dashboard overview.
func (s *Service) Summary() domain.Summary {
	st := s.State()
	return st.Summarize()
}

// WithdrawalQuote evaluates the withdrawal calculator.
func (s *Service) WithdrawalQuote() domain.WithdrawalQuote {
	st := s.State()
	return st.QuoteWithdrawal()
}
