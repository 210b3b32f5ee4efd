package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ebpro/pkg/api"
	"ebpro/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	id       string
	startErr error
	ctx      ChannelContext
	stopped  bool
}

func (c *stubChannel) ID() string { return c.id }

func (c *stubChannel) Start(ctx ChannelContext) error {
	c.ctx = ctx
	return c.startErr
}

func (c *stubChannel) Stop() error {
	c.stopped = true
	return nil
}

type stubProcessor struct {
	err       error
	requestID string
}

func (p *stubProcessor) Handle(ctx context.Context, in *api.Instruction) (*api.Result, error) {
	p.requestID = monitor.RequestID(ctx)
	if p.err != nil {
		return nil, p.err
	}
	return &api.Result{Action: api.ActionBuildExob, Notes: "done"}, nil
}

func (p *stubProcessor) Execute(ctx context.Context, req *api.ActionCall) (*api.Result, error) {
	p.requestID = monitor.RequestID(ctx)
	if p.err != nil {
		return nil, p.err
	}
	return &api.Result{Action: req.Action, File: req.Args[api.ParamOut]}, nil
}

func (p *stubProcessor) Actions() []api.Action { return []api.Action{api.ActionBuildExob} }

type recordingMonitor struct {
	mu      sync.Mutex
	started bool
	msgs    []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error { m.started = true; return nil }
func (m *recordingMonitor) Stop() error  { return nil }

func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func TestBuild_StartsChannels(t *testing.T) {
	ch := &stubChannel{id: "web"}
	mon := &recordingMonitor{}

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithHandler(&stubProcessor{}).
		WithChannel(ch).
		Build()
	require.NoError(t, err)
	assert.True(t, mon.started)
	assert.Same(t, gw, ch.ctx)

	got, ok := gw.GetChannel("web")
	require.True(t, ok)
	assert.Same(t, ch, got)
	assert.Equal(t, []api.Action{api.ActionBuildExob}, gw.Actions())

	gw.StopAll()
	assert.True(t, ch.stopped)
}

func TestBuild_Errors(t *testing.T) {
	_, err := NewGatewayBuilder().WithChannel(&stubChannel{id: "web"}).Build()
	assert.Error(t, err)

	_, err = NewGatewayBuilder().WithHandler(&stubProcessor{}).Build()
	assert.Error(t, err)

	ch := &stubChannel{id: "telegram", startErr: errors.New("bad token")}
	_, err = NewGatewayBuilder().WithHandler(&stubProcessor{}).WithChannel(ch).Build()
	assert.ErrorContains(t, err, "bad token")
	assert.True(t, ch.stopped)
}

func TestHandle_AssignsRequestIDAndNotifies(t *testing.T) {
	p := &stubProcessor{}
	mon := &recordingMonitor{}
	gw := NewGatewayManager()
	gw.SetProcessor(p)
	gw.SetMonitor(mon)

	in := &api.Instruction{Session: SessionContext{ChannelID: "web", Username: "op"}, Text: "build"}
	res, err := gw.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, api.ActionBuildExob, res.Action)

	require.Len(t, in.Session.RequestID, 24)
	assert.Equal(t, in.Session.RequestID, p.requestID)

	require.Len(t, mon.msgs, 2)
	assert.Equal(t, monitor.TypeCommand, mon.msgs[0].MessageType)
	assert.Equal(t, "build", mon.msgs[0].Content)
	assert.Equal(t, monitor.TypeResult, mon.msgs[1].MessageType)
	assert.Equal(t, in.Session.RequestID, mon.msgs[1].RequestID)
}

func TestExecute_KeepsRequestIDAndReportsFailure(t *testing.T) {
	p := &stubProcessor{err: api.NewFailure(api.KindInteraction, "menu failed", "")}
	mon := &recordingMonitor{}
	gw := NewGatewayManager()
	gw.SetProcessor(p)
	gw.SetMonitor(mon)

	req := &api.ActionCall{Session: SessionContext{ChannelID: "web", RequestID: "abc"}, Action: api.ActionPackEcmp}
	_, err := gw.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "abc", p.requestID)

	require.Len(t, mon.msgs, 2)
	assert.Equal(t, monitor.TypeError, mon.msgs[1].MessageType)
	assert.Equal(t, "action_failed: menu failed", mon.msgs[1].Content)
}

func TestHandle_NoProcessor(t *testing.T) {
	gw := NewGatewayManager()
	_, err := gw.Handle(context.Background(), &api.Instruction{Text: "build"})
	assert.ErrorIs(t, err, ErrNoProcessor)
	assert.Nil(t, gw.Actions())
}
