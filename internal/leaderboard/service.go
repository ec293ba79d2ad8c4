package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/errors"
	"github.com/prepmate/prepmate/internal/event"
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service ranks owners by their best accuracy per test type. It feeds off
// result-created events; the ranking is derived state and can be rebuilt
// from the result store.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameResultCreated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventResultCreated))
	})

	return s
}

type GetLeaderboardRequest struct {
	TestType domain.TestType
}

// GetLeaderboard returns all ranked owners for a test type, best accuracy
// first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	if !req.TestType.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid test type: %q", req.TestType))
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.TestType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("leaderboard not found: type=%s", req.TestType))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			OwnerID:  z.Member.(string),
			Accuracy: z.Score,
		})
	}

	return &domain.Leaderboard{
		TestType: req.TestType,
		Entries:  entries,
	}, nil
}

// UpdateLeaderboard records the result's accuracy for its owner. GT keeps
// the owner's best run; a worse re-take never lowers the ranking.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventResultCreated) error {
	r := e.Result

	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(r.TestType), redis.Z{
		Score:  r.Accuracy,
		Member: r.OwnerID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return nil
}

func (s *Service) getLeaderboardKey(t domain.TestType) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, t)
}
