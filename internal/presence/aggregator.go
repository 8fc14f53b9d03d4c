package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/titan/internal/model"
)

// 上流ソース名。メトリクスとキャッシュキーに使う。
const (
	SourceWidget = "widget"
	SourceCounts = "counts"
)

// 上流呼び出しの結果ラベル。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// WidgetFetcher は公開ウィジェットの取得インターフェース。
type WidgetFetcher interface {
	FetchWidget(ctx context.Context, guildID string) (*WidgetData, error)
}

// CountsFetcher は認証付き概算人数の取得インターフェース。
type CountsFetcher interface {
	FetchCounts(ctx context.Context, guildID string) (*GuildCounts, error)
}

// MetricsRecorder は上流呼び出しとキャッシュヒットを記録するインターフェース。
type MetricsRecorder interface {
	RecordUpstream(source, outcome string)
	RecordCacheHit(source string)
}

// AggregatorConfig はAggregatorの設定。
type AggregatorConfig struct {
	GuildID      string        // 空の場合は集約のたびに設定エラーを返す
	FetchTimeout time.Duration // 上流1回あたりのタイムアウト
	CacheTTL     time.Duration // 0以下ならキャッシュしない
}

// Aggregator は2つの上流ソースを取得してPresenceSnapshotに統合する。
type Aggregator struct {
	config  AggregatorConfig
	widget  WidgetFetcher
	counts  CountsFetcher
	cache   Cache
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewAggregator はAggregatorを生成する。
// countsがnilの場合（Botトークン未設定）は公開ウィジェットのみを使う。
// cacheとmetricsはnilでもよい。
func NewAggregator(
	config AggregatorConfig,
	widget WidgetFetcher,
	counts CountsFetcher,
	cache Cache,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		config:  config,
		widget:  widget,
		counts:  counts,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Aggregate は両ソースを並行に取得し、両方の結果が揃ってから統合する。
// ギルドID未設定なら上流を呼ばずに設定エラー、両ソースとも失敗ならUpstreamUnavailableを返す。
func (a *Aggregator) Aggregate(ctx context.Context) (*model.PresenceSnapshot, error) {
	guildID := a.config.GuildID
	if guildID == "" {
		return nil, model.NewMissingConfigError("DISCORD_GUILD_ID")
	}

	var (
		widget *WidgetData
		counts *GuildCounts
		g      errgroup.Group
	)

	g.Go(func() error {
		widget = fetchCached(ctx, a, SourceWidget, guildID, a.widget.FetchWidget)
		return nil
	})
	if a.counts != nil {
		g.Go(func() error {
			counts = fetchCached(ctx, a, SourceCounts, guildID, a.counts.FetchCounts)
			return nil
		})
	}
	// 各ソースの失敗は内部で吸収するため、Waitがエラーを返すことはない
	_ = g.Wait()

	if widget == nil && counts == nil {
		a.logger.Error("all presence sources failed", slog.String("guild_id", guildID))
		return nil, model.NewUpstreamUnavailableError()
	}

	return Merge(widget, counts), nil
}

// Merge は成功したソースの値を統合する。失敗したソースはnilで渡す。
//   - presenceCount: ウィジェット優先、なければ概算値
//   - memberCount: 概算値があれば常に上書き
//   - name: 先に成功したソース（ウィジェット）を優先
//   - instantInvite: ウィジェットのみ
func Merge(widget *WidgetData, counts *GuildCounts) *model.PresenceSnapshot {
	snapshot := &model.PresenceSnapshot{}

	if widget != nil {
		snapshot.PresenceCount = widget.PresenceCount
		snapshot.MemberCount = widget.MemberCount
		snapshot.InstantInvite = widget.InstantInvite
		snapshot.Name = widget.Name
	}

	if counts != nil {
		if snapshot.PresenceCount == nil && counts.ApproximatePresenceCount != nil {
			snapshot.PresenceCount = counts.ApproximatePresenceCount
		}
		if counts.ApproximateMemberCount != nil {
			snapshot.MemberCount = counts.ApproximateMemberCount
		}
		if (snapshot.Name == nil || *snapshot.Name == "") && counts.Name != nil {
			snapshot.Name = counts.Name
		}
	}

	return snapshot
}

// fetchCached はキャッシュを確認してから上流を呼び出す。
// 成功した結果だけをキャッシュし、失敗はnilとして返す。
func fetchCached[T any](
	ctx context.Context,
	a *Aggregator,
	source, guildID string,
	fetch func(ctx context.Context, guildID string) (*T, error),
) *T {
	key := "titan:presence:" + source + ":" + guildID

	if a.cache != nil && a.config.CacheTTL > 0 {
		cached, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("presence cache read failed",
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			var v T
			if err := json.Unmarshal(cached, &v); err == nil {
				a.recordCacheHit(source)
				return &v
			}
		}
	}

	fetchCtx := ctx
	if a.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.config.FetchTimeout)
		defer cancel()
	}

	v, err := fetch(fetchCtx, guildID)
	if err != nil || v == nil {
		a.recordUpstream(source, OutcomeFailure)
		return nil
	}
	a.recordUpstream(source, OutcomeSuccess)

	if a.cache != nil && a.config.CacheTTL > 0 {
		if encoded, err := json.Marshal(v); err == nil {
			if err := a.cache.Set(ctx, key, encoded, a.config.CacheTTL); err != nil {
				a.logger.Warn("presence cache write failed",
					slog.String("source", source),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return v
}

func (a *Aggregator) recordUpstream(source, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordUpstream(source, outcome)
	}
}

func (a *Aggregator) recordCacheHit(source string) {
	if a.metrics != nil {
		a.metrics.RecordCacheHit(source)
	}
}
