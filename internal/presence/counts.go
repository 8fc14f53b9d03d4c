package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bwmarrin/discordgo"
)

// defaultCountsEndpoint は認証付きギルド情報APIのエンドポイント。
var defaultCountsEndpoint = discordgo.EndpointDiscord + "api/v10/guilds/"

// GuildCounts はギルド情報APIから抽出した概算値。欠けている項目はnil。
type GuildCounts struct {
	Name                     *string `json:"name"`
	ApproximatePresenceCount *int    `json:"approximate_presence_count"`
	ApproximateMemberCount   *int    `json:"approximate_member_count"`
}

// CountsClient はBotトークンでギルドの概算人数を取得するクライアント。
// discordgoのRESTセッションを使い、ゲートウェイには接続しない。
type CountsClient struct {
	session  *discordgo.Session
	logger   *slog.Logger
	endpoint string // テスト用に差し替え可能
}

// NewCountsClient はCountsClientを生成する。
// 再試行は行わず、レート制限を受けた場合もその回は失敗として扱う。
func NewCountsClient(botToken string, httpClient *http.Client, logger *slog.Logger) (*CountsClient, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Client = httpClient
	session.MaxRestRetries = 0
	session.ShouldRetryOnRateLimit = false

	return &CountsClient{
		session:  session,
		logger:   logger,
		endpoint: defaultCountsEndpoint,
	}, nil
}

// FetchCounts は GET /guilds/{id}?with_counts=true を呼び出す。
func (c *CountsClient) FetchCounts(ctx context.Context, guildID string) (*GuildCounts, error) {
	bucket := c.endpoint + url.PathEscape(guildID)

	body, err := c.session.RequestWithBucketID(
		http.MethodGet,
		bucket+"?with_counts=true",
		nil,
		bucket,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		c.logger.Warn("guild counts request failed", slog.String("error", err.Error()))
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("failed to decode guild counts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to decode guild counts: %w", err)
	}

	return extractCounts(raw), nil
}

// extractCounts は項目ごとに型を確認して概算値を取り出す。
// 型の合わない項目だけをnilにし、応答全体は成功として扱う。
func extractCounts(raw any) *GuildCounts {
	counts := &GuildCounts{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return counts
	}

	counts.Name = stringValue(obj["name"])
	counts.ApproximatePresenceCount = countField(obj["approximate_presence_count"])
	counts.ApproximateMemberCount = countField(obj["approximate_member_count"])
	return counts
}
