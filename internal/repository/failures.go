package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// FailuresKey is the Redis list of input lines that timed out.
const FailuresKey = "puzzler:failures"

// FailureRepository stores failed input lines in Redis.
type FailureRepository struct {
	redis *redis.Client
}

// NewFailureRepository creates a new FailureRepository.
func NewFailureRepository(client *redis.Client) *FailureRepository {
	return &FailureRepository{
		redis: client,
	}
}

// Record implements puzzle.FailureSink.
func (repo *FailureRepository) Record(ctx context.Context, line string) error {
	if err := repo.redis.RPush(ctx, FailuresKey, line).Err(); err != nil {
		return fmt.Errorf("error storing failure: %w", err)
	}
	return nil
}

// Failures returns up to limit of the oldest failed lines.
func (repo *FailureRepository) Failures(ctx context.Context, limit int64) ([]string, error) {
	lines, err := repo.redis.LRange(ctx, FailuresKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting failures: %w", err)
	}
	return lines, nil
}

// FailureCount returns the number of failed lines.
func (repo *FailureRepository) FailureCount(ctx context.Context) (int64, error) {
	count, err := repo.redis.LLen(ctx, FailuresKey).Result()
	if err != nil {
		return 0, fmt.Errorf("error counting failures: %w", err)
	}
	return count, nil
}
