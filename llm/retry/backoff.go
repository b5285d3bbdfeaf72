package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`     // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"` // 初始延迟时间
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`         // 最大延迟时间
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`       // 延迟时间倍增因子（指数退避）
	Jitter       bool          `yaml:"jitter" env:"JITTER"`               // 是否添加随机抖动

	// ShouldRetry 判断错误是否可重试；为空时使用 types.IsRetryable
	ShouldRetry func(err error) bool `yaml:"-"`
	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultRetryPolicy 返回默认的重试策略，适用于 LLM 与行情接口调用
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	p := DefaultRetryPolicy()
	if policy != nil {
		p = policy
	}
	normalized := *p

	if normalized.MaxRetries < 0 {
		normalized.MaxRetries = 0
	}
	if normalized.InitialDelay <= 0 {
		normalized.InitialDelay = 500 * time.Millisecond
	}
	if normalized.MaxDelay <= 0 {
		normalized.MaxDelay = 5 * time.Second
	}
	if normalized.Multiplier < 1.0 {
		normalized.Multiplier = 2.0
	}
	if normalized.ShouldRetry == nil {
		normalized.ShouldRetry = types.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &backoffRetryer{
		policy: normalized,
		logger: logger.With(zap.String("component", "retryer")),
	}
}

// Do 实现 Retryer.Do：指数退避 + 随机抖动 + 错误过滤
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, lastErr)
		}
		if !r.policy.ShouldRetry(lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// calculateDelay 指数退避：delay = initial * multiplier^(attempt-1)，上限 MaxDelay，抖动 ±25%
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

// DoWithResult is a type-safe helper around Retryer.Do.
//
//	quote, err := retry.DoWithResult(ctx, r, func() (*market.Quote, error) {
//	    return client.Quote(ctx, "JKH")
//	})
func DoWithResult[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
