package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ebpro/pkg/api"
	"ebpro/pkg/monitor"
	"ebpro/pkg/utils"
)

// ErrNoProcessor is returned when an instruction arrives before a processor is set.
var ErrNoProcessor = errors.New("gateway: no command processor set")

// GatewayManager 負責管理所有的 Channels 並統一路由指令
type GatewayManager struct {
	channels  map[string]Channel
	processor CommandProcessor
	monitor   monitor.Monitor // 監控器
	mu        sync.RWMutex
}

// NewGatewayManager 建立一個新的 GatewayManager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]Channel),
	}
}

// SetProcessor 設定處理指令的核心邏輯 (handler)
func (g *GatewayManager) SetProcessor(p CommandProcessor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processor = p
}

// SetMonitor 設定監控器
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.monitor = m
}

// Register 註冊一個 Channel
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll 啟動所有已註冊的 Channels
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		// 啟動 Channel，並傳入 self 作為 Context
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll 停止所有 Channels
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
	if g.monitor != nil {
		_ = g.monitor.Stop()
	}
}

// Actions 回傳目前可執行的動作
func (g *GatewayManager) Actions() []api.Action {
	p := g.currentProcessor()
	if p == nil {
		return nil
	}
	return p.Actions()
}

// Handle 實作 ChannelContext 介面，接收來自 Channel 的自然語言指令
func (g *GatewayManager) Handle(ctx context.Context, in *api.Instruction) (*api.Result, error) {
	ctx = g.prepare(ctx, &in.Session)
	g.notify(monitor.TypeCommand, in.Session, in.Text)

	p := g.currentProcessor()
	if p == nil {
		slog.WarnContext(ctx, "No command processor set")
		return nil, ErrNoProcessor
	}
	res, err := p.Handle(ctx, in)
	g.report(in.Session, res, err)
	return res, err
}

// Execute 實作 ChannelContext 介面，接收結構化的動作呼叫
func (g *GatewayManager) Execute(ctx context.Context, req *api.ActionCall) (*api.Result, error) {
	ctx = g.prepare(ctx, &req.Session)
	g.notify(monitor.TypeCommand, req.Session, string(req.Action))

	p := g.currentProcessor()
	if p == nil {
		slog.WarnContext(ctx, "No command processor set")
		return nil, ErrNoProcessor
	}
	res, err := p.Execute(ctx, req)
	g.report(req.Session, res, err)
	return res, err
}

func (g *GatewayManager) currentProcessor() CommandProcessor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.processor
}

// prepare assigns a request ID when the channel did not and binds it to ctx.
func (g *GatewayManager) prepare(ctx context.Context, s *SessionContext) context.Context {
	if s.RequestID == "" {
		s.RequestID = utils.GenerateID()
	}
	return monitor.WithRequestID(ctx, s.RequestID)
}

func (g *GatewayManager) report(s SessionContext, res *api.Result, err error) {
	if err != nil {
		info := api.Describe(err)
		g.notify(monitor.TypeError, s, fmt.Sprintf("%s: %s", info.Code, info.Message))
		return
	}
	content := string(res.Action)
	if res.File != "" {
		content += " -> " + res.File
	}
	g.notify(monitor.TypeResult, s, content)
}

// notify 廣播到監控器
func (g *GatewayManager) notify(kind string, s SessionContext, content string) {
	g.mu.RLock()
	m := g.monitor
	g.mu.RUnlock()
	if m == nil {
		return
	}
	m.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   s.ChannelID,
		Username:    s.Username,
		RequestID:   s.RequestID,
		Content:     content,
	})
}
