// Package presence はDiscordサーバーのプレゼンス情報の集約と、
// 集約結果をポーリングしてバッジを描画するクライアントを提供する。
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
)

const (
	// defaultWidgetBaseURL は公開ウィジェットAPIのベースURL。
	defaultWidgetBaseURL = "https://discord.com/api/guilds/"
	// maxWidgetBodySize はウィジェットレスポンスの最大サイズ。
	maxWidgetBodySize = 1 << 20
)

// WidgetData は公開ウィジェットから抽出した値。型が合わない項目はnil。
type WidgetData struct {
	Name          *string `json:"name"`
	PresenceCount *int    `json:"presenceCount"`
	MemberCount   *int    `json:"memberCount"`
	InstantInvite *string `json:"instantInvite"`
}

// WidgetClient はDiscordの公開ウィジェットAPIのクライアント。認証は不要。
type WidgetClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用に差し替え可能
}

// NewWidgetClient はWidgetClientを生成する。
func NewWidgetClient(httpClient *http.Client, logger *slog.Logger) *WidgetClient {
	return &WidgetClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    defaultWidgetBaseURL,
	}
}

// FetchWidget はギルドのwidget.jsonを取得する。
// 通信エラー、2xx以外のステータス、JSONとして解釈できないボディはエラーを返す。
func (c *WidgetClient) FetchWidget(ctx context.Context, guildID string) (*WidgetData, error) {
	reqURL := c.baseURL + url.PathEscape(guildID) + "/widget.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build widget request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("widget request failed", slog.String("error", err.Error()))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("widget returned error status", slog.Int("http_status", resp.StatusCode))
		return nil, fmt.Errorf("widget returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWidgetBodySize))
	if err != nil {
		c.logger.Warn("failed to read widget body", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to read widget body: %w", err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("failed to decode widget body", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to decode widget body: %w", err)
	}

	return extractWidget(raw), nil
}

// extractWidget はデコード済みのwidget.jsonから必要な項目を取り出す。
// オブジェクト以外のJSONは全項目nilとして扱う。
func extractWidget(raw any) *WidgetData {
	data := &WidgetData{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return data
	}

	data.PresenceCount = countField(obj["presence_count"])
	if members, ok := obj["members"].([]any); ok {
		n := len(members)
		data.MemberCount = &n
	}
	data.InstantInvite = stringValue(obj["instant_invite"])
	data.Name = stringValue(obj["name"])
	return data
}

// countField は非負の整数値のみを件数として受け付ける。
func countField(v any) *int {
	f, ok := v.(float64)
	if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func stringValue(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
