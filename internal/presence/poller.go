package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/titan/internal/model"
)

// DefaultPollInterval はポーリング間隔の既定値。
const DefaultPollInterval = 15 * time.Second

// State はポーラーが保持する最新の状態。
// Snapshotは最後に成功した取得結果で、まだ成功していなければnil。
type State struct {
	Snapshot *model.PresenceSnapshot
	Failed   bool
}

// Poller は集約エンドポイントを定期的に取得し、最新の状態を保持する。
// 各回の取得は後続の回を待たせず、最後に完了した応答が状態を上書きする。
type Poller struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	onUpdate   func(State)

	mu      sync.Mutex
	state   State
	stopped bool
	wg      sync.WaitGroup
}

// NewPoller はPollerを生成する。intervalが0以下の場合は既定値を使う。
// onUpdateは状態が変わるたびにロックを保持したまま呼ばれるため、速やかに戻ること。
func NewPoller(url string, interval time.Duration, httpClient *http.Client, logger *slog.Logger, onUpdate func(State)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		url:        url,
		interval:   interval,
		httpClient: httpClient,
		logger:     logger,
		onUpdate:   onUpdate,
	}
}

// State は現在の状態を返す。
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run は即時に1回取得し、以降interval毎に取得する。
// ctxがキャンセルされると戻り、戻った後は状態の更新もコールバックも発生しない。
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			p.wg.Wait()
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick は1回分の取得をバックグラウンドで開始する。
func (p *Poller) tick(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		snapshot, err := p.fetch(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("presence poll failed", slog.String("error", err.Error()))
		}
		p.apply(ctx, snapshot, err)
	}()
}

func (p *Poller) apply(ctx context.Context, snapshot *model.PresenceSnapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 停止後に完了した取得は破棄する
	if p.stopped || ctx.Err() != nil {
		return
	}

	if err != nil {
		// 前回の成功結果は保持したままエラーフラグだけ立てる
		p.state.Failed = true
	} else {
		p.state = State{Snapshot: snapshot, Failed: false}
	}

	if p.onUpdate != nil {
		p.onUpdate(p.state)
	}
}

func (p *Poller) fetch(ctx context.Context) (*model.PresenceSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var snapshot model.PresenceSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode presence: %w", err)
	}
	return &snapshot, nil
}
