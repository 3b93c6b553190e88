package wecom

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeEvent    MessageType = "event"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeVideo    MessageType = "video"
	MessageTypeLocation MessageType = "location"
)

// EventType 事件类型
type EventType string

const (
	EventClick       EventType = "click"       // 菜单点击
	EventView        EventType = "view"        // 菜单跳转
	EventSubscribe   EventType = "subscribe"   // 订阅
	EventUnsubscribe EventType = "unsubscribe" // 取消订阅
	EventEnterAgent  EventType = "enter_agent" // 进入应用
)

func (t MessageType) valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeEvent,
		MessageTypeVoice, MessageTypeVideo, MessageTypeLocation:
		return true
	}
	return false
}

func (e EventType) valid() bool {
	switch e {
	case EventClick, EventView, EventSubscribe, EventUnsubscribe, EventEnterAgent:
		return true
	}
	return false
}

// ParsedMessage 解析后的消息，可选字段为空串表示缺失
type ParsedMessage struct {
	MsgType    MessageType `json:"msg_type"`
	FromUser   string      `json:"from_user"`
	ToUser     string      `json:"to_user"`
	CreateTime int64       `json:"create_time"`
	MsgID      string      `json:"msg_id,omitempty"`
	AgentID    string      `json:"agent_id,omitempty"`

	// text
	Content string `json:"content,omitempty"`

	// event
	Event    EventType `json:"event,omitempty"`
	EventKey string    `json:"event_key,omitempty"`

	// image
	PicURL  string `json:"pic_url,omitempty"`
	MediaID string `json:"media_id,omitempty"`
}

type rawMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   string   `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	MsgID        string   `xml:"MsgId"`
	AgentID      string   `xml:"AgentID"`
	Content      string   `xml:"Content"`
	Event        string   `xml:"Event"`
	EventKey     string   `xml:"EventKey"`
	PicURL       string   `xml:"PicUrl"`
	MediaID      string   `xml:"MediaId"`
}

// Parse 把解密后的消息 XML 转为 ParsedMessage，不产生副作用
func Parse(messageXML string) (*ParsedMessage, error) {
	var raw rawMessage
	if err := xml.Unmarshal([]byte(messageXML), &raw); err != nil {
		return nil, fmt.Errorf("%w: XML解析失败: %v", ErrParseFailure, err)
	}

	msgType := strings.TrimSpace(raw.MsgType)
	fromUser := strings.TrimSpace(raw.FromUserName)
	toUser := strings.TrimSpace(raw.ToUserName)
	createTimeText := strings.TrimSpace(raw.CreateTime)

	if msgType == "" || fromUser == "" || toUser == "" || createTimeText == "" {
		return nil, fmt.Errorf("%w: 缺少必填字段", ErrParseFailure)
	}

	createTime, err := strconv.ParseInt(createTimeText, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: CreateTime非法: %v", ErrParseFailure, err)
	}

	msg := &ParsedMessage{
		MsgType:    MessageType(msgType),
		FromUser:   fromUser,
		ToUser:     toUser,
		CreateTime: createTime,
		MsgID:      strings.TrimSpace(raw.MsgID),
		AgentID:    strings.TrimSpace(raw.AgentID),
	}
	if !msg.MsgType.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessageType, msgType)
	}

	switch msg.MsgType {
	case MessageTypeText:
		msg.Content = strings.TrimSpace(raw.Content)
	case MessageTypeEvent:
		if event := strings.TrimSpace(raw.Event); event != "" {
			msg.Event = EventType(event)
			if !msg.Event.valid() {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventType, event)
			}
			msg.EventKey = strings.TrimSpace(raw.EventKey)
		}
	case MessageTypeImage:
		msg.PicURL = strings.TrimSpace(raw.PicURL)
		msg.MediaID = strings.TrimSpace(raw.MediaID)
	}

	return msg, nil
}

// IsAdminUser 管理员列表为空时所有用户都视为管理员
func IsAdminUser(userID string, adminUsers []string) bool {
	if len(adminUsers) == 0 {
		return true
	}
	return slices.Contains(adminUsers, userID)
}
