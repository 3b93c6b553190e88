package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecomCmder/internal/command"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/model"
	"wecomCmder/internal/wecom"
)

const (
	testToken     = "QDG6eK"
	testCorpID    = "wx5823bf96d3bd56c7"
	testTimestamp = "1409659813"
	testNonce     = "1372623149"
)

var testAESKey = strings.TrimSuffix(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")), "=")

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	to    []string
	err   error
	ctxOK []bool
}

func (f *fakeSender) SendText(ctx context.Context, toUser, content string) (wecom.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, toUser)
	f.sent = append(f.sent, content)
	f.ctxOK = append(f.ctxOK, ctx.Err() == nil)
	return wecom.SendResult{MsgIDs: []string{"m"}}, f.err
}

type memoryStore struct {
	mu      sync.Mutex
	records []*model.Message
	err     error
}

func (m *memoryStore) SaveInbound(_ context.Context, msg *wecom.ParsedMessage) (*model.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	record := InboundRecord(msg)
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return record, nil
}

func (m *memoryStore) SaveOutbound(_ context.Context, out Outbound) (*model.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	record := OutboundRecord(out, time.Unix(1700000000, 0))
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return record, nil
}

func (m *memoryStore) List(context.Context, Query) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.Message, 0, len(m.records))
	for _, r := range m.records {
		items = append(items, *r)
	}
	return Page{Items: items, Total: int64(len(items)), Page: 1, PageSize: DefaultPageSize}, nil
}

type memoryDedup struct {
	seen map[string]bool
	err  error
}

func (d *memoryDedup) Seen(_ context.Context, msgID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[msgID] {
		return true, nil
	}
	d.seen[msgID] = true
	return false, nil
}

type recordingNotifier struct {
	published []*model.Message
}

func (n *recordingNotifier) Publish(msg *model.Message) {
	n.published = append(n.published, msg)
}

type fixture struct {
	crypto   *wecom.Crypto
	registry *command.Registry
	sender   *fakeSender
	store    *memoryStore
	notifier *recordingNotifier
	admins   []string
	dedup    Deduplicator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	crypto, err := wecom.NewCrypto(testToken, testAESKey, testCorpID)
	require.NoError(t, err)

	registry := command.NewRegistry(logger.Discard())
	command.RegisterBuiltins(registry)

	return &fixture{
		crypto:   crypto,
		registry: registry,
		sender:   &fakeSender{},
		store:    &memoryStore{},
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) service() *Service {
	return NewService(Options{
		Crypto:     f.crypto,
		Sender:     f.sender,
		Commands:   f.registry,
		AdminUsers: f.admins,
		Store:      f.store,
		Dedup:      f.dedup,
		Notifier:   f.notifier,
		Logger:     logger.Discard(),
	})
}

// deliver 加密消息并交给服务处理
func (f *fixture) deliver(t *testing.T, plainXML string) Result {
	t.Helper()
	envelope, signature, err := f.crypto.EncryptMessage(plainXML, testNonce, testTimestamp)
	require.NoError(t, err)
	return f.service().Handle(context.Background(), signature, testTimestamp, testNonce, envelope)
}

func textXML(from, content, msgID string) string {
	return fmt.Sprintf(`<xml><ToUserName><![CDATA[%s]]></ToUserName><FromUserName><![CDATA[%s]]></FromUserName>`+
		`<CreateTime>1348831860</CreateTime><MsgType><![CDATA[text]]></MsgType>`+
		`<Content><![CDATA[%s]]></Content><MsgId>%s</MsgId><AgentID>1</AgentID></xml>`,
		testCorpID, from, content, msgID)
}

func eventXML(from, event, key string) string {
	return fmt.Sprintf(`<xml><ToUserName><![CDATA[%s]]></ToUserName><FromUserName><![CDATA[%s]]></FromUserName>`+
		`<CreateTime>1348831860</CreateTime><MsgType><![CDATA[event]]></MsgType>`+
		`<Event><![CDATA[%s]]></Event><EventKey><![CDATA[%s]]></EventKey><AgentID>1</AgentID></xml>`,
		testCorpID, from, event, key)
}

func TestStatusCommandForNonAdmin(t *testing.T) {
	f := newFixture(t)
	f.admins = []string{"alice"}

	res := f.deliver(t, textXML("bob", "/status", "1001"))
	require.NoError(t, res.Err)
	assert.Equal(t, StageResponded, res.Stage)
	assert.False(t, res.IsAdmin)
	assert.Equal(t, command.StatusText, res.Reply)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, command.StatusText, f.sender.sent[0])
	assert.Equal(t, "bob", f.sender.to[0])
}

func TestAdminOnlyStatusDenied(t *testing.T) {
	f := newFixture(t)
	f.admins = []string{"alice"}
	f.registry.Register(command.Command{
		ID: "status", Name: "系统状态", Category: "系统", AdminOnly: true, Enabled: true,
		Handler: command.HandlerFunc(func(context.Context, string, []string) (string, error) {
			return command.StatusText, nil
		}),
	})

	res := f.deliver(t, textXML("bob", "/status", "1002"))
	assert.Equal(t, command.ErrPermissionDenied.Error(), res.Reply)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "权限不足，该命令仅管理员可用", f.sender.sent[0])

	res = f.deliver(t, textXML("alice", "/status", "1003"))
	assert.True(t, res.IsAdmin)
	assert.Equal(t, command.StatusText, res.Reply)
}

func TestEmptyAdminListAllowsEveryone(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(command.Command{
		ID: "secret", Name: "secret", Category: "运维", AdminOnly: true, Enabled: true,
		Handler: command.HandlerFunc(func(context.Context, string, []string) (string, error) { return "ok", nil }),
	})

	res := f.deliver(t, textXML("anyone", "/secret", "2001"))
	assert.True(t, res.IsAdmin)
	assert.Equal(t, "ok", res.Reply)
}

func TestCommandParamsAndPrefix(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(command.Command{
		ID: "echo", Name: "echo", Category: "工具", Enabled: true,
		Handler: command.HandlerFunc(func(_ context.Context, _ string, params []string) (string, error) {
			return strings.Join(params, "|"), nil
		}),
	})

	res := f.deliver(t, textXML("bob", "/echo  a   b", "3001"))
	assert.Equal(t, "a|b", res.Reply)

	res = f.deliver(t, textXML("bob", "hello there", "3002"))
	assert.Equal(t, HintText, res.Reply)

	res = f.deliver(t, textXML("bob", "/nope", "3003"))
	assert.Contains(t, res.Reply, "命令不存在")
}

func TestEvents(t *testing.T) {
	f := newFixture(t)

	res := f.deliver(t, eventXML("bob", "click", "status"))
	assert.Equal(t, command.StatusText, res.Reply)

	res = f.deliver(t, eventXML("bob", "enter_agent", ""))
	assert.Equal(t, WelcomeText, res.Reply)

	res = f.deliver(t, eventXML("bob", "subscribe", ""))
	assert.Empty(t, res.Reply)
	assert.Equal(t, StageDispatched, res.Stage)
	assert.Len(t, f.sender.sent, 2)
}

func TestNonTextMessagesGetNoReply(t *testing.T) {
	f := newFixture(t)
	image := fmt.Sprintf(`<xml><ToUserName>%s</ToUserName><FromUserName>bob</FromUserName><CreateTime>1</CreateTime>`+
		`<MsgType>image</MsgType><PicUrl>http://x/y.png</PicUrl><MediaId>m</MediaId><MsgId>4001</MsgId></xml>`, testCorpID)

	res := f.deliver(t, image)
	require.NoError(t, res.Err)
	assert.Equal(t, StageDispatched, res.Stage)
	assert.Empty(t, f.sender.sent)
	require.Len(t, f.store.records, 1)
	assert.Equal(t, "image", f.store.records[0].MsgType)
}

func TestTamperedSignatureStopsAtReceived(t *testing.T) {
	f := newFixture(t)
	envelope, signature, err := f.crypto.EncryptMessage(textXML("bob", "/status", "5001"), testNonce, testTimestamp)
	require.NoError(t, err)

	bad := "0" + signature[1:]
	if bad == signature {
		bad = "1" + signature[1:]
	}
	res := f.service().Handle(context.Background(), bad, testTimestamp, testNonce, envelope)
	assert.Equal(t, StageReceived, res.Stage)
	assert.ErrorIs(t, res.Err, wecom.ErrSignatureMismatch)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.store.records)
}

func TestUnparsableStopsAtDecrypted(t *testing.T) {
	f := newFixture(t)
	res := f.deliver(t, "<xml><FromUserName>bob</FromUserName></xml>")
	assert.Equal(t, StageDecrypted, res.Stage)
	assert.ErrorIs(t, res.Err, wecom.ErrParseFailure)
}

func TestPersistenceFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("db down")

	res := f.deliver(t, textXML("bob", "/status", "6001"))
	assert.Equal(t, StageResponded, res.Stage)
	assert.Len(t, f.sender.sent, 1)
}

func TestSendFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.sender.err = wecom.ErrNetwork

	res := f.deliver(t, textXML("bob", "/status", "7001"))
	assert.Equal(t, StageDispatched, res.Stage)
	assert.ErrorIs(t, res.Err, wecom.ErrNetwork)

	require.Len(t, f.store.records, 2)
	assert.Equal(t, model.DirectionOut, f.store.records[1].Direction)
	assert.Equal(t, model.StatusFailed, f.store.records[1].Status)
}

func TestReplySurvivesCanceledRequest(t *testing.T) {
	f := newFixture(t)
	envelope, signature, err := f.crypto.EncryptMessage(textXML("bob", "/status", "8001"), testNonce, testTimestamp)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.service().Handle(ctx, signature, testTimestamp, testNonce, envelope)
	assert.Equal(t, StageResponded, res.Stage)
	require.Len(t, f.sender.ctxOK, 1)
	assert.True(t, f.sender.ctxOK[0])
}

func TestDuplicateStopsAfterParsed(t *testing.T) {
	f := newFixture(t)
	f.dedup = &memoryDedup{seen: map[string]bool{}}

	first := f.deliver(t, textXML("bob", "/status", "9001"))
	assert.Equal(t, StageResponded, first.Stage)

	second := f.deliver(t, textXML("bob", "/status", "9001"))
	assert.True(t, second.Duplicate)
	assert.Equal(t, StageParsed, second.Stage)
	assert.Len(t, f.sender.sent, 1)
}

func TestDedupFailureTreatedAsNew(t *testing.T) {
	f := newFixture(t)
	f.dedup = &memoryDedup{err: errors.New("redis down")}

	res := f.deliver(t, textXML("bob", "/status", "9101"))
	assert.False(t, res.Duplicate)
	assert.Equal(t, StageResponded, res.Stage)
}

func TestRecordsArePublished(t *testing.T) {
	f := newFixture(t)

	f.deliver(t, textXML("bob", "/status", "9201"))
	require.Len(t, f.notifier.published, 2)
	assert.Equal(t, model.DirectionIn, f.notifier.published[0].Direction)
	assert.Equal(t, "9201", f.notifier.published[0].MsgID)
	assert.True(t, strings.HasPrefix(f.notifier.published[1].MsgID, "out_"))
}

func TestInboundRecordDefaults(t *testing.T) {
	record := InboundRecord(&wecom.ParsedMessage{
		MsgType:    wecom.MessageTypeEvent,
		FromUser:   "bob",
		ToUser:     testCorpID,
		CreateTime: 42,
		Event:      wecom.EventClick,
		EventKey:   "status",
	})
	assert.Equal(t, "bob_42", record.MsgID)
	assert.Equal(t, "status", record.Content)
	assert.Equal(t, model.StatusReceived, record.Status)
}

func TestQueryNormalize(t *testing.T) {
	q := Query{PageSize: 500, Direction: "all"}.normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.PageSize)
	assert.Empty(t, q.Direction)

	q = Query{}.normalize()
	assert.Equal(t, DefaultPageSize, q.PageSize)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "parsed", StageParsed.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
