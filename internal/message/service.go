package message

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"wecomCmder/internal/command"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/model"
	"wecomCmder/internal/wecom"
)

// Ack 回调接口固定返回值，避免企业微信重试
const Ack = "success"

// 固定回复
const (
	WelcomeText = "欢迎使用企业微信指令管理系统！\n\n发送 /help 查看可用命令"
	HintText    = "请使用菜单或发送 /help 查看可用命令"
)

const sendTimeout = 30 * time.Second

// Stage 处理流程阶段
type Stage int

const (
	StageReceived Stage = iota
	StageDecrypted
	StageParsed
	StageAuthorized
	StagePersisted
	StageDispatched
	StageResponded
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageDecrypted:
		return "decrypted"
	case StageParsed:
		return "parsed"
	case StageAuthorized:
		return "authorized"
	case StagePersisted:
		return "persisted"
	case StageDispatched:
		return "dispatched"
	case StageResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// Decrypter 校验并解密回调消息
type Decrypter interface {
	DecryptMessage(signature, timestamp, nonce, envelopeXML string) (string, error)
}

// Sender 主动发送文本消息
type Sender interface {
	SendText(ctx context.Context, toUser, content string) (wecom.SendResult, error)
}

// Dispatcher 执行命令
type Dispatcher interface {
	Execute(ctx context.Context, id, userID string, isAdmin bool, params []string) (string, error)
}

// Deduplicator 过滤重复推送
type Deduplicator interface {
	Seen(ctx context.Context, msgID string) (bool, error)
}

// Notifier 推送新消息记录
type Notifier interface {
	Publish(msg *model.Message)
}

// Result 一次回调的处理结果。Stage 为最后完成的阶段，Err 为终止原因。
type Result struct {
	Stage     Stage
	Message   *wecom.ParsedMessage
	IsAdmin   bool
	Reply     string
	Duplicate bool
	Err       error
}

// Options 服务依赖，Store、Dedup、Notifier 可为空
type Options struct {
	Crypto        Decrypter
	Sender        Sender
	Commands      Dispatcher
	AdminUsers    []string
	CommandPrefix string
	Store         Store
	Dedup         Deduplicator
	Notifier      Notifier
	Logger        *slog.Logger
}

// Service 回调消息处理流程
type Service struct {
	crypto   Decrypter
	sender   Sender
	commands Dispatcher
	admins   []string
	prefix   string
	store    Store
	dedup    Deduplicator
	notifier Notifier
	log      *slog.Logger
}

// NewService 创建消息处理服务
func NewService(opts Options) *Service {
	prefix := opts.CommandPrefix
	if prefix == "" {
		prefix = "/"
	}
	return &Service{
		crypto:   opts.Crypto,
		sender:   opts.Sender,
		commands: opts.Commands,
		admins:   opts.AdminUsers,
		prefix:   prefix,
		store:    opts.Store,
		dedup:    opts.Dedup,
		notifier: opts.Notifier,
		log:      logger.OrDefault(opts.Logger, "message"),
	}
}

// Handle 处理一条回调消息。任何失败都只体现在 Result 中，调用方始终返回 Ack。
func (s *Service) Handle(ctx context.Context, signature, timestamp, nonce, body string) Result {
	var res Result

	plain, err := s.crypto.DecryptMessage(signature, timestamp, nonce, body)
	if err != nil {
		s.log.Warn("解密消息失败", "error", err)
		res.Err = err
		return res
	}
	res.Stage = StageDecrypted

	msg, err := wecom.Parse(plain)
	if err != nil {
		s.log.Warn("解析消息失败", "error", err)
		res.Err = err
		return res
	}
	res.Stage = StageParsed
	res.Message = msg
	s.log.Info("收到消息", "type", msg.MsgType, "event", msg.Event, "from", msg.FromUser, "msg_id", msg.MsgID)

	if s.duplicate(ctx, msg) {
		res.Duplicate = true
		return res
	}

	res.IsAdmin = wecom.IsAdminUser(msg.FromUser, s.admins)
	res.Stage = StageAuthorized

	s.persistInbound(ctx, msg)
	res.Stage = StagePersisted

	res.Reply = s.dispatch(ctx, msg, res.IsAdmin)
	res.Stage = StageDispatched
	if res.Reply == "" {
		return res
	}

	if err := s.reply(ctx, msg.FromUser, res.Reply); err != nil {
		res.Err = err
		return res
	}
	res.Stage = StageResponded
	return res
}

func (s *Service) duplicate(ctx context.Context, msg *wecom.ParsedMessage) bool {
	if s.dedup == nil || msg.MsgID == "" {
		return false
	}
	seen, err := s.dedup.Seen(ctx, msg.MsgID)
	if err != nil {
		s.log.Warn("消息去重失败，按新消息处理", "msg_id", msg.MsgID, "error", err)
		return false
	}
	if seen {
		s.log.Info("忽略重复消息", "msg_id", msg.MsgID)
	}
	return seen
}

func (s *Service) persistInbound(ctx context.Context, msg *wecom.ParsedMessage) {
	if s.store == nil {
		return
	}
	record, err := s.store.SaveInbound(ctx, msg)
	if err != nil {
		s.log.Error("保存消息失败", "from", msg.FromUser, "error", err)
		return
	}
	s.publish(record)
}

func (s *Service) dispatch(ctx context.Context, msg *wecom.ParsedMessage, isAdmin bool) string {
	switch msg.MsgType {
	case wecom.MessageTypeText:
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return ""
		}
		if !strings.HasPrefix(content, s.prefix) {
			return HintText
		}
		fields := strings.Fields(strings.TrimPrefix(content, s.prefix))
		if len(fields) == 0 {
			return HintText
		}
		return s.execute(ctx, fields[0], msg.FromUser, isAdmin, fields[1:])

	case wecom.MessageTypeEvent:
		switch msg.Event {
		case wecom.EventClick:
			if msg.EventKey == "" {
				return ""
			}
			return s.execute(ctx, msg.EventKey, msg.FromUser, isAdmin, nil)
		case wecom.EventEnterAgent:
			return WelcomeText
		}
	}
	return ""
}

func (s *Service) execute(ctx context.Context, id, userID string, isAdmin bool, params []string) string {
	out, err := s.commands.Execute(ctx, id, userID, isAdmin, params)
	if err != nil {
		s.log.Info("命令未成功执行", "command", id, "user", userID, "error", err)
		return command.ReplyText(err)
	}
	return out
}

// reply 发送回复并记录。回调请求结束后发送仍需完成，因此不继承取消信号。
func (s *Service) reply(ctx context.Context, toUser, content string) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	status := model.StatusSent
	_, err := s.sender.SendText(sendCtx, toUser, content)
	if err != nil {
		status = model.StatusFailed
		s.log.Error("发送回复失败", "to", toUser, "error", err)
	}

	if s.store != nil {
		record, saveErr := s.store.SaveOutbound(sendCtx, Outbound{
			ToUser:  toUser,
			MsgType: string(wecom.MessageTypeText),
			Content: content,
			Status:  status,
		})
		if saveErr != nil {
			s.log.Error("保存回复失败", "to", toUser, "error", saveErr)
		} else {
			s.publish(record)
		}
	}
	return err
}

func (s *Service) publish(record *model.Message) {
	if s.notifier != nil {
		s.notifier.Publish(record)
	}
}
