package treatment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// MaxSuggestions caps how many learned entries a lookup returns.
const MaxSuggestions = 20

type Config struct {
	AutoApplyThreshold int
}

type Service struct {
	repo      Repository
	tx        db.Transactor
	logger    zerolog.Logger
	threshold int
	now       func() time.Time
}

func NewService(repo Repository, tx db.Transactor, cfg Config, logger zerolog.Logger) *Service {
	threshold := cfg.AutoApplyThreshold
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}
	return &Service{
		repo:      repo,
		tx:        tx,
		logger:    logger.With().Str("service", "treatment").Logger(),
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Learn records that in.Medications were prescribed for in.DiagnosisKey. A
// known combination in the bucket is reinforced, otherwise a new entry starts
// at usage 1.
func (s *Service) Learn(ctx context.Context, in LearnInput) (*Association, error) {
	key := strings.TrimSpace(in.DiagnosisKey)
	if key == "" {
		return nil, apierr.Validation("diagnosis_key is required")
	}
	meds := make([]medication.Snapshot, 0, len(in.Medications))
	for _, m := range in.Medications {
		if strings.TrimSpace(m.Name) != "" {
			meds = append(meds, m)
		}
	}
	combo := CombinationKey(meds)
	if combo == "" {
		return nil, apierr.Validation("at least one named medication is required")
	}

	entry := &Association{
		DiagnosisKey:   key,
		Specialty:      specialtyKey(in.Specialty),
		CombinationKey: combo,
		TreatmentName:  in.TreatmentName,
		Medications:    meds,
		Instructions:   in.Instructions,
	}
	now := s.now()

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindEntry(ctx, entry.DiagnosisKey, entry.Specialty, combo)
		switch {
		case err == nil:
			entry.ID = existing.ID
			if err := s.repo.Reinforce(ctx, entry, now); err != nil {
				return err
			}
			entry.UsageCount = existing.UsageCount + 1
			entry.CreatedAt = existing.CreatedAt
			if entry.TreatmentName == nil {
				entry.TreatmentName = existing.TreatmentName
			}
			if entry.Instructions == nil {
				entry.Instructions = existing.Instructions
			}
		case errors.Is(err, apierr.ErrNotFound):
			entry.UsageCount = 1
			if err := s.repo.Create(ctx, entry); err != nil {
				return err
			}
		default:
			return err
		}
		entry.LastUsedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("diagnosis_key", key).
		Str("combination", combo).
		Int("usage_count", entry.UsageCount).
		Msg("treatment learned")
	return entry, nil
}

// GetSuggestions returns the (diagnosisKey, specialty) bucket ranked by usage,
// ties broken by most recent use. An empty bucket is an empty slice.
func (s *Service) GetSuggestions(ctx context.Context, diagnosisKey, specialty string) ([]*Association, error) {
	key := strings.TrimSpace(diagnosisKey)
	if key == "" {
		return []*Association{}, nil
	}
	items, err := s.repo.ListBucket(ctx, key, textnorm.Normalize(specialty), MaxSuggestions)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Association{}
	}
	return items, nil
}

// GetScopedSuggestions looks in the specialty bucket first and falls back to
// the unscoped bucket when it is empty.
func (s *Service) GetScopedSuggestions(ctx context.Context, diagnosisKey, specialty string) ([]*Association, error) {
	items, err := s.GetSuggestions(ctx, diagnosisKey, specialty)
	if err != nil || len(items) > 0 || textnorm.Normalize(specialty) == "" {
		return items, err
	}
	return s.GetSuggestions(ctx, diagnosisKey, "")
}

// ShouldAutoApply reports whether top may be applied without confirmation:
// it is well established, or the diagnosis carries a classification code.
func (s *Service) ShouldAutoApply(top *Association, hasCode bool) bool {
	if top == nil {
		return false
	}
	return hasCode || top.UsageCount >= s.threshold
}

// Suggest resolves the diagnosis key from code or name, ranks its learned
// treatments and decides whether the top one auto-applies.
func (s *Service) Suggest(ctx context.Context, code, name, specialty string) (Suggestion, error) {
	key := DiagnosisKey(code, name)
	out := Suggestion{DiagnosisKey: key, Suggestions: []*Association{}, AutoApplyThreshold: s.threshold}
	if key == "" {
		return out, nil
	}
	items, err := s.GetScopedSuggestions(ctx, key, specialty)
	if err != nil {
		return out, err
	}
	out.Suggestions = items
	out.AutoApply = s.ShouldAutoApply(out.Top(), strings.TrimSpace(code) != "")
	return out, nil
}

// Forget deletes a learned entry.
func (s *Service) Forget(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Association, error) {
	return s.repo.GetByID(ctx, id)
}
