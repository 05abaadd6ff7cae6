package hub

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/notices"
	"github.com/vx-labs/chat-hub/polls"
	"github.com/vx-labs/chat-hub/transport"
)

// Inbound event names.
const (
	EventNewUser          = "newUser"
	EventMessage          = "message"
	EventVoteCount        = "vote-count"
	EventReport           = "report"
	EventSystemMessage    = "systemMessage"
	EventChatStop         = "chatStop"
	EventGetOutTrash      = "getOutTrash"
	EventAllConnectionOut = "allConnectionOut"
	EventFreeze           = "freeze"
	EventClean            = "clean"
	EventNotice           = "notice"
	EventVote             = "vote"
	EventBannerShow       = "banner-show"
	EventBannerHide       = "banner-hide"
)

type newUser struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"user_nick"`
	Level    int    `json:"level"`
	IDSig    string `json:"id_sig"`
	NickSig  string `json:"nick_sig"`
	Secret   string `json:"secret"`
	Type     string `json:"type"`
}

type chatMessage struct {
	Message string `json:"message"`
}

type voteCount struct {
	Value string `json:"value"`
}

type report struct {
	Nickname string `json:"nick"`
	Message  string `json:"message"`
}

type systemMessage struct {
	Message string `json:"message"`
}

type chatStop struct {
	Nickname string `json:"user_nick"`
	Minutes  int    `json:"time"`
}

type getOutTrash struct {
	Nickname string `json:"user_nick"`
}

type allConnectionOut struct{}

type freeze struct{}

type clean struct {
	Name string `json:"name"`
}

type notice struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Message string `json:"notice"`
}

type vote struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

type banner struct {
	Show bool
}

// decodeCommand turns a post-authentication frame into its typed command.
func decodeCommand(frame transport.Frame) (interface{}, error) {
	var cmd interface{}
	switch frame.Event {
	case EventMessage:
		cmd = &chatMessage{}
	case EventVoteCount:
		cmd = &voteCount{}
	case EventReport:
		cmd = &report{}
	case EventSystemMessage:
		cmd = &systemMessage{}
	case EventChatStop:
		cmd = &chatStop{}
	case EventGetOutTrash:
		cmd = &getOutTrash{}
	case EventAllConnectionOut:
		return allConnectionOut{}, nil
	case EventFreeze:
		return freeze{}, nil
	case EventClean:
		cmd = &clean{}
	case EventNotice:
		cmd = &notice{}
	case EventVote:
		cmd = &vote{}
	case EventBannerShow:
		return banner{Show: true}, nil
	case EventBannerHide:
		return banner{Show: false}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "event %q", frame.Event)
	}
	if err := decodeData(frame.Data, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(transport.ErrMalformedFrame, err.Error())
	}
	return nil
}

// Outbound payloads.

type sessionInfo struct {
	SessionID string `json:"socket_id"`
	Nickname  string `json:"socket_nick"`
	UserID    string `json:"user_id"`
	PID       string `json:"pid"`
}

type connectUpdate struct {
	Type    string                    `json:"type"`
	Name    string                    `json:"name"`
	Freeze  bool                      `json:"freeze"`
	Owner   []string                  `json:"owner"`
	Count   int64                     `json:"count"`
	Notices map[string]notices.Notice `json:"notice"`
}

type adminUpdate struct {
	Type      string                 `json:"type"`
	AdminList map[string]sessionInfo `json:"adminList"`
	TrashList map[string]interface{} `json:"trashList,omitempty"`
	PID       string                 `json:"pid"`
}

type consoleUpdate struct {
	Type        string                 `json:"type"`
	ConsoleList map[string]sessionInfo `json:"consoleList"`
	PID         string                 `json:"pid"`
}

type ownerUpdate struct {
	Type  string   `json:"type"`
	Owner []string `json:"owner"`
	PID   string   `json:"pid"`
}

type trashUpdate struct {
	Type      string                 `json:"type"`
	TrashList map[string]interface{} `json:"trashList"`
	PID       string                 `json:"pid"`
}

type countUpdate struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
	PID   string `json:"pid"`
}

type userChat struct {
	Nickname string `json:"user_nick"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

type roleChat struct {
	Type     string `json:"type"`
	Nickname string `json:"user_nick"`
	Message  string `json:"message"`
}

type noticeUpdate struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Message string `json:"notice,omitempty"`
}

type freezeNotice struct {
	Message  string `json:"message"`
	IsFreeze bool   `json:"isFreeze"`
}

type chatStopNotice struct {
	Duration int64  `json:"duration"`
	Reason   string `json:"reason"`
}

type voteStart struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	List  []string `json:"list"`
}

type voteEnd struct {
	ID      string                 `json:"id"`
	Result  map[string]polls.Tally `json:"result"`
	Message string                 `json:"message"`
}

type reportNotice struct {
	Nickname string `json:"user_nick"`
	Target   string `json:"target_nick"`
	Message  string `json:"message"`
	PID      string `json:"pid"`
}

type consoleLine struct {
	Type string `json:"type"`
	Data string `json:"data"`
	PID  string `json:"pid"`
}

const (
	messageFrozen     = "chat room frozen"
	messageUnfrozen   = "chat room unfrozen"
	messagePollClosed = "poll closed"
	messageVoted      = "vote recorded"
	messageDuplicate  = "already voted"
)
