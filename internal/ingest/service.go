// Package ingest pulls deal history from the terminal into the deal
// store, one managed account at a time over the shared session.
package ingest

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mt5bridge/internal/models"
	"mt5bridge/internal/mux"
	"mt5bridge/internal/repository"
	"mt5bridge/internal/session"
	"mt5bridge/internal/terminal"
)

type Service struct {
	Session  *session.Manager
	Repo     repository.Repository
	Logger   *zap.Logger
	Accounts []mux.ManagedAccount

	LookbackDays int
	Overlap      time.Duration
	BatchSize    int

	running atomic.Bool
}

// RunOnce ingests history for every managed account. Per-account failures
// are logged and skipped; like the refresh cycle, the pass ends by
// restoring the identity that was active when it started.
func (s *Service) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer s.running.Store(false)

	original, hadOriginal := s.Session.CurrentIdentity()

	var firstErr error
	for _, acct := range s.Accounts {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		if err := s.ingestAccount(ctx, acct); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if s.Logger != nil {
				s.Logger.Warn("deal ingest skipped account",
					zap.Int64("account", acct.Login),
					zap.Error(err),
				)
			}
		}
	}

	if hadOriginal {
		s.restoreIdentity(ctx, original)
	}
	return firstErr
}

func (s *Service) ingestAccount(ctx context.Context, acct mux.ManagedAccount) error {
	scope := "deals:" + strconv.FormatInt(acct.Login, 10)
	now := time.Now().UTC()

	state, err := s.Repo.GetSyncState(ctx, scope)
	if err != nil {
		return err
	}
	from := now.AddDate(0, 0, -s.lookbackDays())
	if state != nil && state.WatermarkTS != nil {
		// Re-read a small overlap so deals landing near the watermark are
		// never missed; the ticket upsert keeps re-reads idempotent.
		from = state.WatermarkTS.Add(-s.Overlap)
	}
	if state == nil {
		state = &models.SyncState{Scope: scope}
	}
	state.LastAttemptAt = &now

	records, err := s.Session.HistoryFor(ctx, acct.Account, from, now)
	if err != nil {
		msg := err.Error()
		state.LastError = &msg
		if saveErr := s.Repo.SaveSyncState(ctx, state); saveErr != nil && s.Logger != nil {
			s.Logger.Warn("failed to save sync state", zap.String("scope", scope), zap.Error(saveErr))
		}
		return err
	}

	deals := make([]models.Deal, 0, len(records))
	// Start from the stored cursor, not the overlapped read window, so a
	// quiet account never walks its watermark backwards.
	watermark := from
	if state.WatermarkTS != nil {
		watermark = *state.WatermarkTS
	}
	for _, r := range records {
		deals = append(deals, dealFromRecord(r, acct.Login))
		if r.Time.After(watermark) {
			watermark = r.Time
		}
	}

	inserted, err := s.upsertBatched(ctx, deals)
	if err != nil {
		msg := err.Error()
		state.LastError = &msg
		_ = s.Repo.SaveSyncState(ctx, state)
		return err
	}

	state.WatermarkTS = &watermark
	state.LastSuccessAt = &now
	state.LastError = nil
	if err := s.Repo.SaveSyncState(ctx, state); err != nil {
		return err
	}
	if s.Logger != nil && inserted > 0 {
		s.Logger.Info("ingested deals",
			zap.Int64("account", acct.Login),
			zap.Int64("inserted", inserted),
			zap.Int("fetched", len(records)),
		)
	}
	return nil
}

func (s *Service) restoreIdentity(ctx context.Context, login int64) {
	for _, acct := range s.Accounts {
		if acct.Login != login {
			continue
		}
		restoreCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			restoreCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := s.Session.Login(restoreCtx, acct.Account); err != nil && s.Logger != nil {
			s.Logger.Error("failed to restore original identity after ingest",
				zap.Int64("account", login),
				zap.Error(err),
			)
		}
		return
	}
}

func (s *Service) upsertBatched(ctx context.Context, deals []models.Deal) (int64, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 500
	}
	var inserted int64
	for start := 0; start < len(deals); start += batch {
		end := min(start+batch, len(deals))
		n, err := s.Repo.UpsertDeals(ctx, deals[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (s *Service) lookbackDays() int {
	if s.LookbackDays <= 0 {
		return 30
	}
	return s.LookbackDays
}

func dealFromRecord(r terminal.DealRecord, account int64) models.Deal {
	return models.Deal{
		Ticket:        r.Ticket,
		Order:         r.Order,
		Time:          r.Time.UTC(),
		Type:          r.Type,
		Entry:         r.Entry,
		Magic:         r.Magic,
		PositionID:    r.PositionID,
		Reason:        r.Reason,
		Volume:        r.Volume,
		Price:         r.Price,
		Commission:    r.Commission,
		Swap:          r.Swap,
		Profit:        r.Profit,
		Fee:           r.Fee,
		Symbol:        r.Symbol,
		Comment:       r.Comment,
		AccountNumber: account,
		ExternalID:    r.ExternalID,
	}
}
