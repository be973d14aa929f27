package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"golden/internal/request/models"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	"golden/pkg/platform/sentinel"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleProfile(tax string) models.Profile {
	return models.Profile{
		Name:         "Acme Trading",
		TaxNumber:    tax,
		CustomerType: "company",
		Country:      "DE",
	}
}

func activeRecord(tax string, at time.Time) *models.Request {
	r := models.NewDraft(id.NewRequestID(), sampleProfile(tax), "alice", at)
	r.ApplySubmit(at)
	r.ApplyApprove(at)
	r.ApplyComplianceApprove(at)
	return r
}

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	s.Run("created record is returned as a copy", func() {
		r := models.NewDraft(id.NewRequestID(), sampleProfile("DE-1"), "alice", baseTime)
		s.Require().NoError(s.store.Create(s.ctx, r))

		got, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(r.Profile, got.Profile)

		got.Profile.Name = "mutated"
		again, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal("Acme Trading", again.Profile.Name)
	})

	s.Run("missing record returns not found", func() {
		_, err := s.store.FindByID(s.ctx, id.NewRequestID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate id is rejected", func() {
		r := models.NewDraft(id.NewRequestID(), sampleProfile("DE-2"), "alice", baseTime)
		s.Require().NoError(s.store.Create(s.ctx, r))
		s.ErrorIs(s.store.Create(s.ctx, r), sentinel.ErrAlreadyUsed)
	})
}

func (s *InMemoryStoreSuite) TestSaveVersioning() {
	r := models.NewDraft(id.NewRequestID(), sampleProfile("DE-3"), "alice", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, r))

	s.Run("save increments version", func() {
		loaded, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		loaded.ApplySubmit(baseTime)
		s.Require().NoError(s.store.Save(s.ctx, loaded))
		s.Equal(int64(2), loaded.Version)
	})

	s.Run("stale version is a conflict", func() {
		stale := r.Clone()
		stale.ApplySubmit(baseTime)
		s.ErrorIs(s.store.Save(s.ctx, stale), sentinel.ErrConflict)
	})

	s.Run("unknown record is not found", func() {
		ghost := models.NewDraft(id.NewRequestID(), sampleProfile("DE-4"), "alice", baseTime)
		s.ErrorIs(s.store.Save(s.ctx, ghost), sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestRunInTx() {
	s.Run("error discards staged writes", func() {
		r := models.NewDraft(id.NewRequestID(), sampleProfile("DE-5"), "alice", baseTime)
		boom := errors.New("boom")
		err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx ports.RecordStore) error {
			s.Require().NoError(tx.Create(ctx, r))
			_, err := tx.FindByID(ctx, r.ID)
			s.Require().NoError(err, "staged write should be visible inside the transaction")
			return boom
		})
		s.ErrorIs(err, boom)
		_, err = s.store.FindByID(s.ctx, r.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("cancelled context is a timeout", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		err := s.store.RunInTx(ctx, func(context.Context, ports.RecordStore) error {
			s.Fail("fn must not run")
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("waiting for a busy writer respects the deadline", func() {
		st := NewInMemoryStore(WithTxTimeout(20 * time.Millisecond))
		held := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = st.RunInTx(s.ctx, func(context.Context, ports.RecordStore) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held
		err := st.RunInTx(s.ctx, func(context.Context, ports.RecordStore) error { return nil })
		close(release)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *InMemoryStoreSuite) TestActiveUniqueness() {
	golden := activeRecord("DE-10", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, golden))

	s.Run("index returns the active holder", func() {
		got, err := s.store.FindActiveByKey(s.ctx, golden.Key())
		s.Require().NoError(err)
		s.Require().NotNil(got)
		s.Equal(golden.ID, got.ID)
	})

	s.Run("unknown key returns nil", func() {
		got, err := s.store.FindActiveByKey(s.ctx, models.NewDuplicateKey("nope", "company"))
		s.NoError(err)
		s.Nil(got)
	})

	s.Run("second active record for the key is rejected", func() {
		rival := models.NewDraft(id.NewRequestID(), sampleProfile("DE-10"), "bob", baseTime)
		rival.ApplySubmit(baseTime)
		rival.ApplyApprove(baseTime)
		s.Require().NoError(s.store.Create(s.ctx, rival))

		rival.ApplyComplianceApprove(baseTime)
		s.ErrorIs(s.store.Save(s.ctx, rival), sentinel.ErrAlreadyUsed)

		still, err := s.store.FindByID(s.ctx, rival.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, still.Status)
	})

	s.Run("supersede and activate on the same key commit together", func() {
		shadow, err := models.NewGoldenEdit(id.NewRequestID(), golden, "alice", baseTime)
		s.Require().NoError(err)
		shadow.ApplySubmit(baseTime)
		shadow.ApplyApprove(baseTime)
		s.Require().NoError(s.store.Create(s.ctx, shadow))

		err = s.store.RunInTx(s.ctx, func(ctx context.Context, tx ports.RecordStore) error {
			src, err := tx.FindByID(ctx, golden.ID)
			if err != nil {
				return err
			}
			src.ApplySupersede(shadow.ID, baseTime)
			if err := tx.Save(ctx, src); err != nil {
				return err
			}
			holder, err := tx.FindActiveByKey(ctx, shadow.Key())
			s.Require().NoError(err)
			s.Nil(holder, "superseded source must not hold the key inside the transaction")

			sh, err := tx.FindByID(ctx, shadow.ID)
			if err != nil {
				return err
			}
			sh.ApplyComplianceApprove(baseTime)
			return tx.Save(ctx, sh)
		})
		s.Require().NoError(err)

		holder, err := s.store.FindActiveByKey(s.ctx, golden.Key())
		s.Require().NoError(err)
		s.Require().NotNil(holder)
		s.Equal(shadow.ID, holder.ID)

		src, err := s.store.FindByID(s.ctx, golden.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSuperseded, src.Status)
		s.Require().NotNil(src.SupersededBy)
		s.Equal(shadow.ID, *src.SupersededBy)
	})
}

func (s *InMemoryStoreSuite) TestListByStatus() {
	older := models.NewDraft(id.NewRequestID(), sampleProfile("DE-20"), "alice", baseTime)
	newer := models.NewDraft(id.NewRequestID(), sampleProfile("DE-21"), "alice", baseTime.Add(time.Minute))
	pending := models.NewDraft(id.NewRequestID(), sampleProfile("DE-22"), "alice", baseTime)
	pending.ApplySubmit(baseTime)
	for _, r := range []*models.Request{newer, pending, older} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	s.Run("filters and orders oldest first", func() {
		got, err := s.store.ListByStatus(s.ctx, []models.Status{models.StatusNew}, 0)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(older.ID, got[0].ID)
		s.Equal(newer.ID, got[1].ID)
	})

	s.Run("limit truncates", func() {
		got, err := s.store.ListByStatus(s.ctx, []models.Status{models.StatusNew, models.StatusPending}, 1)
		s.Require().NoError(err)
		s.Len(got, 1)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentSaves() {
	r := models.NewDraft(id.NewRequestID(), sampleProfile("DE-30"), "alice", baseTime)
	r.ApplySubmit(baseTime)
	s.Require().NoError(s.store.Create(s.ctx, r))

	const writers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(reject bool) {
			defer wg.Done()
			copyOf := r.Clone()
			if reject {
				copyOf.ApplyReject("incomplete", baseTime)
			} else {
				copyOf.ApplyApprove(baseTime)
			}
			err := s.store.Save(s.ctx, copyOf)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(writers-1), conflicts.Load())

	final, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), final.Version)
	s.NoError(final.CheckInvariants())
}
