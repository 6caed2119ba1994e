// Package websocket pushes design changes to every open editor of a design over socket.io.
package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"designlab/core"
	"designlab/handlers/auth"
	"designlab/lab"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	eventJoin    = "join-design"
	eventJoinAck = "join-design-ack"
	eventLeave   = "leave-design"
	eventChanged = "design-changed"
)

// TokenParser verifies the session token a client joins with.
type TokenParser interface {
	ParseJWT(token string) (*auth.AppClaims, error)
}

type ackInvoker func(err error, payload map[string]any)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// DesignEvent is the payload of design-changed.
type DesignEvent struct {
	Design core.Design `json:"design"`
	State  lab.State   `json:"state"`
}

// Hub owns the socket.io server. Every design has its own room, keyed by owner and id,
// so a client only ever hears about designs its token owns.
type Hub struct {
	srv    *socketio.Server
	tokens TokenParser

	mu    sync.RWMutex
	rooms map[socketio.Room]int
}

func NewHub(tokens TokenParser) *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	h := &Hub{
		srv:    socketio.NewServer(nil, opts),
		tokens: tokens,
		rooms:  make(map[socketio.Room]int),
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	h.srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		h.onConnect(socket)
	})
	return h
}

func roomFor(userID, designID string) socketio.Room {
	return socketio.Room("design:" + userID + "/" + designID)
}

func (h *Hub) onConnect(socket *socketio.Socket) {
	log := logrus.WithField("socket_id", socket.Id())
	log.Debug("Socket connected")

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(eventJoin, func(datas ...any) {
		designID, token, ack, err := parseJoinArgs(datas)
		if err == nil {
			var claims *auth.AppClaims
			claims, err = h.tokens.ParseJWT(token)
			if err == nil {
				room := roomFor(claims.Subject, designID)
				socket.Join(room)
				h.track(room, 1)
				log.WithFields(logrus.Fields{"design_id": designID, "user_id": claims.Subject}).Info("Socket joined design")
				respond(socket, ack, eventJoinAck, map[string]any{"status": "ok", "designId": designID}, nil)
				return
			}
			err = auth.ErrInvalidToken
		}
		respond(socket, ack, eventJoinAck, map[string]any{"status": "error", "error": err.Error()}, err)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(eventLeave, func(datas ...any) {
		designID, token, _, err := parseJoinArgs(datas)
		if err != nil {
			return
		}
		claims, err := h.tokens.ParseJWT(token)
		if err != nil {
			return
		}
		room := roomFor(claims.Subject, designID)
		socket.Leave(room)
		h.track(room, -1)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(...any) {
		for _, room := range socket.Rooms().Keys() {
			h.track(room, -1)
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(...any) {
		socket.RemoveAllListeners("")
	})
}

// track adjusts the listener count of a design room. Rooms socket.io creates for each
// socket id are never registered and are ignored.
func (h *Hub) track(room socketio.Room, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.rooms[room]
	if !ok && delta < 0 {
		return
	}
	n += delta
	if n <= 0 {
		delete(h.rooms, room)
		return
	}
	h.rooms[room] = n
}

// ActiveRooms reports how many sockets listen on each design room.
func (h *Hub) ActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for room, n := range h.rooms {
		out[string(room)] = n
	}
	return out
}

// DesignChanged broadcasts the saved design to its room.
func (h *Hub) DesignChanged(d core.Design) {
	room := roomFor(d.UserID, d.ID)
	h.mu.RLock()
	_, listening := h.rooms[room]
	h.mu.RUnlock()
	if !listening {
		return
	}
	if err := h.srv.To(room).Emit(eventChanged, DesignEvent{Design: d, State: lab.StateOf(d)}); err != nil {
		logrus.WithError(err).WithField("design_id", d.ID).Warn("Failed to broadcast design change")
	}
}

func (h *Hub) ServeHandler() http.Handler {
	return h.srv.ServeHandler(nil)
}

func (h *Hub) Close() {
	h.srv.Close(nil)
}

// parseJoinArgs reads (designId, token[, ack]) from a join or leave event.
func parseJoinArgs(datas []any) (designID, token string, ack ackInvoker, err error) {
	ack, args := extractAck(datas)
	if len(args) < 2 {
		return "", "", ack, errors.New("design id and token are required")
	}
	designID, _ = args[0].(string)
	token, _ = args[1].(string)
	if designID == "" {
		return "", "", ack, errors.New("invalid design id")
	}
	if token == "" {
		return "", "", ack, errors.New("token is required")
	}
	return designID, token, ack, nil
}

func extractAck(datas []any) (ackInvoker, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	if ack := wrapAck(datas[len(datas)-1]); ack != nil {
		return ack, datas[:len(datas)-1]
	}
	return nil, datas
}

// wrapAck adapts whatever callback shape the client library hands us. A parameter of
// type error receives the error; the first other parameter receives the payload, or the
// error when it is the only parameter.
func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}
	fn := reflect.ValueOf(candidate)
	if fn.Kind() != reflect.Func {
		return nil
	}
	typ := fn.Type()
	return func(err error, payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		payloadSet := false
		for i := range args {
			var v any
			switch {
			case typ.In(i) == errorType:
				if err != nil {
					v = err
				}
			case payloadSet:
			case typ.NumIn() == 1 && err != nil:
				v, payloadSet = err, true
			default:
				v, payloadSet = payload, true
			}
			args[i] = coerce(v, typ.In(i))
		}
		fn.Call(args)
	}
}

func coerce(v any, target reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(target)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(target):
		return rv
	case target.Kind() == reflect.Interface && target.NumMethod() == 0:
		return rv
	case target.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(v)).Convert(target)
	case target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Interface:
		// socket.io's own ack type takes the reply as a list.
		return reflect.ValueOf([]any{v})
	}
	return reflect.Zero(target)
}

func respond(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, err error) {
	if ack != nil {
		ack(err, payload)
		return
	}
	_ = socket.Emit(event, payload)
}
