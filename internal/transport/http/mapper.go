package http

import (
	"encoding/json"

	"github.com/pulsechat/pulse-server/internal/core"
	"github.com/pulsechat/pulse-server/internal/proto"
	"github.com/pulsechat/pulse-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave, proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		kind := map[string]core.CommandKind{
			proto.InboundTypeJoin:        core.CommandJoinRoom,
			proto.InboundTypeLeave:       core.CommandLeaveRoom,
			proto.InboundTypeTypingStart: core.CommandTypingStart,
			proto.InboundTypeTypingStop:  core.CommandTypingStop,
		}[inbound.Type]
		return &core.Command{Kind: kind, RequestID: inbound.ID, Room: data.Room}, nil, nil

	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandSendMessage,
			RequestID: inbound.ID,
			Room:      data.Room,
			Content:   data.Text,
		}, nil, nil

	case proto.InboundTypeRead:
		var data proto.ReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Room == "" || data.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room and message_id are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandReadMessage,
			RequestID: inbound.ID,
			Room:      data.Room,
			MessageID: data.MessageID,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func eventMessage(msg *store.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:     msg.ID,
		Room:   msg.RoomID,
		Sender: msg.Sender,
		Text:   msg.Content,
		TS:     msg.CreatedAt.UnixMilli(),
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data:  eventMessage(event.Message),
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "typing",
			Data:  proto.EventTyping{Room: event.Room, User: event.User, Typing: event.Typing},
		}
	case core.EventPresence:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "presence",
			Data:  proto.EventPresence{User: event.User, Online: event.Online},
		}
	case core.EventRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "read",
			Data:  proto.EventRead{Room: event.Room, User: event.User, MessageID: event.MessageID},
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, eventMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "history",
			Data:  proto.EventHistory{Room: event.Room, Messages: messages},
		}
	case core.EventAck:
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			ReqID: event.RequestID,
			Data:  proto.AckData{MessageID: event.MessageID},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, ReqID: event.RequestID, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ReqID: event.RequestID,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message, Retryable: event.Error.Retryable},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
