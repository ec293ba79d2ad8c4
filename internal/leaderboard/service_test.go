package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/prepmate/prepmate/internal/domain"
	"github.com/prepmate/prepmate/internal/event"
	"github.com/prepmate/prepmate/internal/leaderboard"
)

func TestService_UpdateLeaderboard(t *testing.T) {
	s := makeService(t)

	for _, r := range []domain.TestResult{
		{OwnerID: "u1", TestType: domain.TestTypeAptitude, Accuracy: 75},
		{OwnerID: "u2", TestType: domain.TestTypeAptitude, Accuracy: 50},
	} {
		require.NoError(t, s.UpdateLeaderboard(context.Background(), domain.EventResultCreated{Result: r}))
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		TestType: domain.TestTypeAptitude,
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		TestType: domain.TestTypeAptitude,
		Entries: []domain.LeaderboardEntry{
			{OwnerID: "u1", Accuracy: 75},
			{OwnerID: "u2", Accuracy: 50},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_UpdateLeaderboard_KeepsBestAccuracy(t *testing.T) {
	s := makeService(t)

	for _, accuracy := range []float64{60, 90, 40} {
		require.NoError(t, s.UpdateLeaderboard(context.Background(), domain.EventResultCreated{
			Result: domain.TestResult{OwnerID: "u1", TestType: domain.TestTypeCoding, Accuracy: accuracy},
		}))
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		TestType: domain.TestTypeCoding,
	})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{OwnerID: "u1", Accuracy: 90}}, resp.Entries,
		"a worse re-take must not lower the ranking")
}

func TestService_GetLeaderboard_Empty(t *testing.T) {
	s := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		TestType: domain.TestTypeHR,
	})
	require.Error(t, err)
}

func TestService_RanksPerTestType(t *testing.T) {
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventResultCreated{
		Result: domain.TestResult{OwnerID: "u1", TestType: domain.TestTypeAptitude, Accuracy: 80},
	})
	eb.Publish(context.Background(), domain.EventResultCreated{
		Result: domain.TestResult{OwnerID: "u1", TestType: domain.TestTypeHR, Accuracy: 20},
	})
	eb.Stop()

	aptitude, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{TestType: domain.TestTypeAptitude})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{OwnerID: "u1", Accuracy: 80}}, aptitude.Entries)

	hr, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{TestType: domain.TestTypeHR})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{OwnerID: "u1", Accuracy: 20}}, hr.Entries)
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "prepmate",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
