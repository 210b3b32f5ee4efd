package telegram

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"ebpro/pkg/api"
	"ebpro/pkg/channels"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) texts() []string {
	var out []string
	for _, c := range s.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeContext struct {
	res  *api.Result
	err  error
	seen []*api.Instruction
}

func (f *fakeContext) Handle(_ context.Context, in *api.Instruction) (*api.Result, error) {
	f.seen = append(f.seen, in)
	return f.res, f.err
}

func (f *fakeContext) Execute(context.Context, *api.ActionCall) (*api.Result, error) {
	return nil, nil
}

func (f *fakeContext) Actions() []api.Action { return api.Actions() }

func newTestChannel(t *testing.T, allowed ...string) (*TelegramChannel, *fakeSender) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	out := &fakeSender{}
	return newChannel(ctx, cancel, TelegramConfig{Token: "x", AllowedUsers: allowed}, out), out
}

func message(userID int64, username, text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: username},
		Chat: &tgbotapi.Chat{ID: 42},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return m
}

func TestHandleMessage_Success(t *testing.T) {
	ch, out := newTestChannel(t, "1001")
	ctx := &fakeContext{res: &api.Result{Action: api.ActionBuildExob, Notes: "Дію виконано успішно."}}

	ch.handleMessage(ctx, message(1001, "operator", "зібрати проект"))

	require.Len(t, ctx.seen, 1)
	in := ctx.seen[0]
	assert.Equal(t, "зібрати проект", in.Text)
	assert.True(t, in.Preauthorized)
	assert.Equal(t, "telegram", in.Session.ChannelID)
	assert.Equal(t, "1001", in.Session.UserID)

	assert.Equal(t, []string{"✅ Дію виконано успішно."}, out.texts())
}

func TestHandleMessage_Failure(t *testing.T) {
	ch, out := newTestChannel(t, "@Operator")
	ctx := &fakeContext{err: api.NewFailure(api.KindClassification, "Не вдалося визначити дію.", "Використайте ключові слова.")}

	ch.handleMessage(ctx, message(7, "operator", "привіт"))

	assert.Equal(t, []string{"❌ Не вдалося визначити дію.\n💡 Використайте ключові слова."}, out.texts())
}

func TestHandleMessage_Rejected(t *testing.T) {
	ch, out := newTestChannel(t, "1001")
	ctx := &fakeContext{}

	ch.handleMessage(ctx, message(666, "stranger", "зібрати проект"))

	assert.Empty(t, ctx.seen)
	require.Len(t, out.texts(), 1)
	assert.Contains(t, out.texts()[0], "allowed_users")
}

func TestHandleMessage_Help(t *testing.T) {
	ch, out := newTestChannel(t, "1001")
	ctx := &fakeContext{}

	ch.handleMessage(ctx, message(1001, "", "/help"))
	ch.handleMessage(ctx, message(1001, "", "/start"))

	assert.Empty(t, ctx.seen)
	assert.Equal(t, []string{usage, usage}, out.texts())
}

func TestHandleMessage_UploadsScreenshot(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "sim.png")
	// Minimal PNG signature is enough for content sniffing
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000000000000000"), 0644))
	doc := filepath.Join(dir, "demo.ecmp")
	require.NoError(t, os.WriteFile(doc, []byte("PK\x03\x04 archive"), 0644))

	ch, out := newTestChannel(t, "1001")

	ch.handleMessage(&fakeContext{res: &api.Result{Action: api.ActionTakeScreenshot, File: png, Notes: "ok"}}, message(1001, "", "скріншот"))
	ch.handleMessage(&fakeContext{res: &api.Result{Action: api.ActionPackEcmp, File: doc, Notes: "ok"}}, message(1001, "", "запакуй"))

	var photos, docs int
	for _, c := range out.sent {
		switch c.(type) {
		case tgbotapi.PhotoConfig:
			photos++
		case tgbotapi.DocumentConfig:
			docs++
		}
	}
	assert.Equal(t, 1, photos)
	assert.Equal(t, 1, docs)
}

func TestIsAllowed(t *testing.T) {
	ch, _ := newTestChannel(t, "1001", "@Alice", " bob ")

	assert.True(t, ch.isAllowed("1001", ""))
	assert.True(t, ch.isAllowed("5", "alice"))
	assert.True(t, ch.isAllowed("6", "BOB"))
	assert.False(t, ch.isAllowed("7", "carol"))
	assert.False(t, ch.isAllowed("8", ""))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"абв", "где", "є"}, splitMessage("абвгдеє", 3))
}

func TestFormatReply_WithFile(t *testing.T) {
	got := formatReply(&api.Result{Action: api.ActionPackEcmp, File: "D:/p.ecmp", Notes: "Готово."}, nil)
	assert.Equal(t, "✅ Готово.\n📄 D:/p.ecmp", got)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(jsoniter.RawMessage(`{"token":"123:abc","allowed_users":["1001"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1001"}, cfg.AllowedUsers)

	_, err = parseConfig(jsoniter.RawMessage(`{"allowed_users":["1001"]}`))
	assert.ErrorContains(t, err, "token")

	_, err = parseConfig(jsoniter.RawMessage(`{"token":"123:abc"}`))
	assert.ErrorContains(t, err, "allowed_users")

	_, ok := channels.GetChannelFactory("telegram")
	assert.True(t, ok)
}

func TestStopAwareDial_ReleasesAfterDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	dial := stopAwareDial(stopCtx, &net.Dialer{Timeout: time.Second})

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		conn, err := dial(context.Background(), "tcp", ln.Addr().String())
		require.NoError(t, err)
		conn.Close()
	}
	// Nothing stays parked on stopCtx once the connections are established.
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+2 }, 2*time.Second, 20*time.Millisecond)
}

func TestStopAwareDial_AbortsOnStop(t *testing.T) {
	stopCtx, stop := context.WithCancel(context.Background())
	entered := make(chan struct{})
	dialer := &net.Dialer{
		ControlContext: func(ctx context.Context, _, _ string, _ syscall.RawConn) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	dial := stopAwareDial(stopCtx, dialer)

	errCh := make(chan error, 1)
	go func() {
		_, err := dial(context.Background(), "tcp", "127.0.0.1:9")
		errCh <- err
	}()

	<-entered
	stop()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dial was not aborted by stop")
	}
}
