//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"golden/internal/request/models"
	"golden/internal/request/ports"
	"golden/internal/request/store"
	id "golden/pkg/domain"
	"golden/pkg/platform/sentinel"
	"golden/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "requests", "audit_outbox"))
}

var pgTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func pgDraft(tax string) *models.Request {
	return models.NewDraft(id.NewRequestID(), models.Profile{
		Name:         "Nordwind GmbH",
		TaxNumber:    tax,
		CustomerType: "company",
		Country:      "DE",
		City:         "Hamburg",
	}, "alice", pgTime)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	r := pgDraft("DE-100")
	s.Require().NoError(s.store.Create(ctx, r))

	got, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
	s.Equal(r.Profile, got.Profile)
	s.Equal(models.StatusNew, got.Status)
	s.Equal(int64(1), got.Version)
	s.Nil(got.SourceGoldenID)

	_, err = s.store.FindByID(ctx, id.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSaveOptimisticVersion() {
	ctx := context.Background()
	r := pgDraft("DE-101")
	s.Require().NoError(s.store.Create(ctx, r))

	stale := r.Clone()
	r.ApplySubmit(pgTime)
	s.Require().NoError(s.store.Save(ctx, r))
	s.Equal(int64(2), r.Version)

	stale.ApplySubmit(pgTime)
	s.ErrorIs(s.store.Save(ctx, stale), sentinel.ErrConflict)

	ghost := pgDraft("DE-102")
	s.ErrorIs(s.store.Save(ctx, ghost), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestActiveKeyUniqueness() {
	ctx := context.Background()
	first := pgDraft("DE-200")
	second := pgDraft("DE-200")
	for _, r := range []*models.Request{first, second} {
		r.ApplySubmit(pgTime)
		r.ApplyApprove(pgTime)
		s.Require().NoError(s.store.Create(ctx, r))
	}

	first.ApplyComplianceApprove(pgTime)
	s.Require().NoError(s.store.Save(ctx, first))

	second.ApplyComplianceApprove(pgTime)
	s.ErrorIs(s.store.Save(ctx, second), sentinel.ErrAlreadyUsed)

	holder, err := s.store.FindActiveByKey(ctx, first.Key())
	s.Require().NoError(err)
	s.Require().NotNil(holder)
	s.Equal(first.ID, holder.ID)
}

func (s *PostgresStoreSuite) TestGoldenEditSwapCommitsAtomically() {
	ctx := context.Background()
	golden := pgDraft("DE-300")
	golden.ApplySubmit(pgTime)
	golden.ApplyApprove(pgTime)
	golden.ApplyComplianceApprove(pgTime)
	s.Require().NoError(s.store.Create(ctx, golden))

	shadow, err := models.NewGoldenEdit(id.NewRequestID(), golden, "alice", pgTime)
	s.Require().NoError(err)
	shadow.ApplySubmit(pgTime)
	shadow.ApplyApprove(pgTime)
	s.Require().NoError(s.store.Create(ctx, shadow))

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		src, err := tx.FindByID(ctx, golden.ID)
		if err != nil {
			return err
		}
		src.ApplySupersede(shadow.ID, pgTime)
		if err := tx.Save(ctx, src); err != nil {
			return err
		}
		sh, err := tx.FindByID(ctx, shadow.ID)
		if err != nil {
			return err
		}
		sh.ApplyComplianceApprove(pgTime)
		return tx.Save(ctx, sh)
	})
	s.Require().NoError(err)

	holder, err := s.store.FindActiveByKey(ctx, golden.Key())
	s.Require().NoError(err)
	s.Require().NotNil(holder)
	s.Equal(shadow.ID, holder.ID)
	s.Require().NotNil(holder.SourceGoldenID)
	s.Equal(golden.ID, *holder.SourceGoldenID)

	src, err := s.store.FindByID(ctx, golden.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSuperseded, src.Status)
	s.Require().NotNil(src.SupersededBy)
	s.Equal(shadow.ID, *src.SupersededBy)
}

func (s *PostgresStoreSuite) TestRollbackOnError() {
	ctx := context.Background()
	r := pgDraft("DE-400")
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		if err := tx.Create(ctx, r); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.FindByID(ctx, r.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByStatus() {
	ctx := context.Background()
	older := pgDraft("DE-500")
	newer := pgDraft("DE-501")
	newer.CreatedAt = pgTime.Add(time.Minute)
	pending := pgDraft("DE-502")
	pending.ApplySubmit(pgTime)
	for _, r := range []*models.Request{newer, pending, older} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	got, err := s.store.ListByStatus(ctx, []models.Status{models.StatusNew}, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(older.ID, got[0].ID)
	s.Equal(newer.ID, got[1].ID)

	got, err = s.store.ListByStatus(ctx, []models.Status{models.StatusNew, models.StatusPending}, 0)
	s.Require().NoError(err)
	s.Len(got, 3)
}

// Row locks serialize concurrent decisions on one record; exactly one wins.
func (s *PostgresStoreSuite) TestConcurrentDecisionsSerialize() {
	ctx := context.Background()
	r := pgDraft("DE-600")
	r.ApplySubmit(pgTime)
	s.Require().NoError(s.store.Create(ctx, r))

	const workers = 10
	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_ = s.store.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
				cur, err := tx.FindByID(ctx, r.ID)
				if err != nil {
					return err
				}
				if cur.Status != models.StatusPending {
					return sentinel.ErrInvalidState
				}
				if approve {
					cur.ApplyApprove(pgTime)
				} else {
					cur.ApplyReject("missing documents", pgTime)
				}
				if err := tx.Save(ctx, cur); err != nil {
					return err
				}
				applied.Add(1)
				return nil
			})
		}(i%2 == 0)
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())
	final, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), final.Version)
	s.NoError(final.CheckInvariants())
}
