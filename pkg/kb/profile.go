package kb

import (
	"context"
	"sync"

	"github.com/easyops/contextcore/pkg/otel"
)

// Profile 主体画像。
//
// 画像不占用令牌预算，与事实流水线独立获取。
type Profile struct {
	// Identity 身份标签（如称谓、角色）
	Identity []string

	// Sentiment 当前情绪倾向描述
	Sentiment string
}

// IdentityProvider 身份画像提供方。
type IdentityProvider interface {
	// Identity 获取主体的身份标签
	Identity(ctx context.Context, subject string) ([]string, error)
}

// SentimentProvider 情绪画像提供方。
type SentimentProvider interface {
	// Sentiment 获取主体的情绪倾向
	Sentiment(ctx context.Context, subject string) (string, error)
}

// ProfileFetcher 并行获取主体画像
//
// 身份和情绪来自不同的知识域，二者并行获取；
// 任一提供方失败时仍返回另一方的结果，画像获取从不失败。
type ProfileFetcher struct {
	identity  IdentityProvider
	sentiment SentimentProvider
	logger    otel.Logger
}

// ProfileFetcherOption ProfileFetcher 配置选项。
type ProfileFetcherOption func(*ProfileFetcher)

// WithProfileLogger 设置日志器。
func WithProfileLogger(logger otel.Logger) ProfileFetcherOption {
	return func(f *ProfileFetcher) {
		f.logger = logger
	}
}

// NewProfileFetcher 创建画像获取器。提供方可以为 nil，表示对应维度不启用。
func NewProfileFetcher(identity IdentityProvider, sentiment SentimentProvider, opts ...ProfileFetcherOption) *ProfileFetcher {
	f := &ProfileFetcher{
		identity:  identity,
		sentiment: sentiment,
		logger:    otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 并行获取主体的身份与情绪画像。
//
// 失败维度留空，不返回错误。
func (f *ProfileFetcher) Fetch(ctx context.Context, subject string) Profile {
	var profile Profile
	var wg sync.WaitGroup

	if f.identity != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			labels, err := f.identity.Identity(ctx, subject)
			if err != nil {
				f.logger.WithContext(ctx).Warn("身份画像获取失败",
					"subject", subject,
					"error", err.Error())
				return
			}
			profile.Identity = labels
		}()
	}

	if f.sentiment != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mood, err := f.sentiment.Sentiment(ctx, subject)
			if err != nil {
				f.logger.WithContext(ctx).Warn("情绪画像获取失败",
					"subject", subject,
					"error", err.Error())
				return
			}
			profile.Sentiment = mood
		}()
	}

	wg.Wait()
	return profile
}

// SourceProfileAdapter 将普通知识源适配为画像提供方
//
// 身份维度取来源返回的事实列表；情绪维度取第一条事实。
type SourceProfileAdapter struct {
	source Source
}

// NewSourceProfileAdapter 创建知识源画像适配器。
func NewSourceProfileAdapter(source Source) *SourceProfileAdapter {
	return &SourceProfileAdapter{source: source}
}

// Identity 获取主体的身份标签
func (a *SourceProfileAdapter) Identity(ctx context.Context, subject string) ([]string, error) {
	result, err := a.source.Query(ctx, subject, "identity")
	if err != nil {
		return nil, err
	}
	return result.Facts, nil
}

// Sentiment 获取主体的情绪倾向
func (a *SourceProfileAdapter) Sentiment(ctx context.Context, subject string) (string, error) {
	result, err := a.source.Query(ctx, subject, "sentiment")
	if err != nil {
		return "", err
	}
	if len(result.Facts) == 0 {
		return "", nil
	}
	return result.Facts[0], nil
}

// compile-time interface checks
var (
	_ IdentityProvider  = (*SourceProfileAdapter)(nil)
	_ SentimentProvider = (*SourceProfileAdapter)(nil)
)
