package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"go.uber.org/zap"
)

// RecipientFilter narrows candidate recipients to those whose stored
// preferences allow a message of the given category.
type RecipientFilter struct {
	preferences repository.PreferenceRepository
	logger      *zap.Logger
}

func NewRecipientFilter(preferences repository.PreferenceRepository, logger *zap.Logger) (*RecipientFilter, error) {
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecipientFilter{
		preferences: preferences,
		logger:      logger,
	}, nil
}

// Filter returns the eligible recipients in input order. Unknown users, users
// without a phone number and duplicate user ids are dropped. An empty result is not an error.
func (f *RecipientFilter) Filter(ctx context.Context, recipients []domain.Recipient, category domain.Category) ([]domain.Recipient, error) {
	if len(recipients) == 0 {
		return []domain.Recipient{}, nil
	}

	userIDs := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		id := strings.TrimSpace(r.UserID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		userIDs = append(userIDs, id)
	}

	prefs, err := f.preferences.GetByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient preferences: %w", err)
	}

	eligible := make([]domain.Recipient, 0, len(userIDs))
	added := make(map[string]struct{}, len(userIDs))
	for _, r := range recipients {
		id := strings.TrimSpace(r.UserID)
		if _, ok := added[id]; ok {
			continue
		}

		p, ok := prefs[id]
		if !ok || !p.Allows(category) {
			continue
		}

		phone := strings.TrimSpace(p.PhoneNumber)
		if phone == "" {
			phone = strings.TrimSpace(r.PhoneNumber)
		}
		if phone == "" {
			continue
		}

		added[id] = struct{}{}
		eligible = append(eligible, domain.Recipient{
			UserID:      id,
			PhoneNumber: phone,
			UserType:    r.UserType,
		})
	}

	if dropped := len(recipients) - len(eligible); dropped > 0 {
		f.logger.Debug("recipients filtered out",
			zap.String("category", category.String()),
			zap.Int("candidates", len(recipients)),
			zap.Int("eligible", len(eligible)),
		)
	}
	return eligible, nil
}
