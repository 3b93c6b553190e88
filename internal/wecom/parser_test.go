package wecom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textXML = `<xml>
   <ToUserName><![CDATA[toUser]]></ToUserName>
   <FromUserName><![CDATA[fromUser]]></FromUserName>
   <CreateTime>1348831860</CreateTime>
   <MsgType><![CDATA[text]]></MsgType>
   <Content><![CDATA[ this is a test ]]></Content>
   <MsgId>1234567890123456</MsgId>
   <AgentID>1</AgentID>
</xml>`

func TestParseText(t *testing.T) {
	msg, err := Parse(textXML)
	require.NoError(t, err)

	assert.Equal(t, MessageTypeText, msg.MsgType)
	assert.Equal(t, "fromUser", msg.FromUser)
	assert.Equal(t, "toUser", msg.ToUser)
	assert.Equal(t, int64(1348831860), msg.CreateTime)
	assert.Equal(t, "1234567890123456", msg.MsgID)
	assert.Equal(t, "1", msg.AgentID)
	assert.Equal(t, "this is a test", msg.Content)
}

func TestParseTextWithoutContent(t *testing.T) {
	msg, err := Parse(`<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime><MsgType>text</MsgType></xml>`)
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
}

func TestParseEvent(t *testing.T) {
	msg, err := Parse(`<xml>
		<ToUserName><![CDATA[toUser]]></ToUserName>
		<FromUserName><![CDATA[UserID]]></FromUserName>
		<CreateTime>1348831860</CreateTime>
		<MsgType><![CDATA[event]]></MsgType>
		<Event><![CDATA[click]]></Event>
		<EventKey><![CDATA[status]]></EventKey>
		<AgentID>1</AgentID>
	</xml>`)
	require.NoError(t, err)

	assert.Equal(t, MessageTypeEvent, msg.MsgType)
	assert.Equal(t, EventClick, msg.Event)
	assert.Equal(t, "status", msg.EventKey)
}

func TestParseEventWithoutEvent(t *testing.T) {
	msg, err := Parse(`<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime><MsgType>event</MsgType></xml>`)
	require.NoError(t, err)
	assert.Empty(t, msg.Event)
}

func TestParseImage(t *testing.T) {
	msg, err := Parse(`<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime><MsgType>image</MsgType><PicUrl>http://x/p.png</PicUrl><MediaId>m1</MediaId><Content>ignored</Content></xml>`)
	require.NoError(t, err)

	assert.Equal(t, "http://x/p.png", msg.PicURL)
	assert.Equal(t, "m1", msg.MediaID)
	assert.Empty(t, msg.Content)
}

func TestParseFailures(t *testing.T) {
	cases := map[string]struct {
		xml  string
		want error
	}{
		"missing MsgType": {
			xml:  `<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime></xml>`,
			want: ErrParseFailure,
		},
		"missing FromUserName": {
			xml:  `<xml><ToUserName>t</ToUserName><CreateTime>1</CreateTime><MsgType>text</MsgType></xml>`,
			want: ErrParseFailure,
		},
		"bad CreateTime": {
			xml:  `<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>abc</CreateTime><MsgType>text</MsgType></xml>`,
			want: ErrParseFailure,
		},
		"unknown MsgType": {
			xml:  `<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime><MsgType>file</MsgType></xml>`,
			want: ErrUnsupportedMessageType,
		},
		"unknown Event": {
			xml:  `<xml><ToUserName>t</ToUserName><FromUserName>f</FromUserName><CreateTime>1</CreateTime><MsgType>event</MsgType><Event>scancode_push</Event></xml>`,
			want: ErrUnsupportedEventType,
		},
		"not xml": {
			xml:  `{"MsgType":"text"}`,
			want: ErrParseFailure,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg, err := Parse(tc.xml)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestIsAdminUser(t *testing.T) {
	assert.True(t, IsAdminUser("anyone", nil))
	assert.True(t, IsAdminUser("anyone", []string{}))
	assert.True(t, IsAdminUser("alice", []string{"alice", "bob"}))
	assert.False(t, IsAdminUser("carol", []string{"alice", "bob"}))
}
