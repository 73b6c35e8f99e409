package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const gatewayUrl = "wss://gateway.discord.gg/?v=10&encoding=json"

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// guilds + guild messages + message content
const identifyIntents = 1<<0 | 1<<9 | 1<<15

// Gateway maintains the websocket half of the Discord connection and
// dispatches inbound events. One Gateway supports one consumer.
type Gateway struct {
	token string

	// OnReady is called once per (re)connect.
	OnReady func(user User)
	// OnMessage is called for every message visible to the bot,
	// including its own.
	OnMessage func(msg Message)
}

func NewGateway(token string) *Gateway {
	return &Gateway{token: token}
}

type gatewayPayload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Type     string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type readyData struct {
	User User `json:"user"`
}

const reconnectPause = time.Second * 5

// Run serves the gateway until ctx is done, redialing with a fixed
// pause whenever the connection drops.
func (g *Gateway) Run(ctx context.Context) {
	for {
		err := g.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "gateway connection lost", "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectPause):
		}
	}
}

func (g *Gateway) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, gatewayUrl, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	// multi-kilobyte task descriptions arrive inside dispatch frames
	conn.SetReadLimit(1 << 22)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hello gatewayPayload
	err = wsjson.Read(ctx, conn, &hello)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello opcode, got %d", hello.Op)
	}
	var helloD helloData
	err = json.Unmarshal(hello.Data, &helloD)
	if err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}

	var lastSequence atomic.Int64
	lastSequence.Store(-1)
	go g.heartbeatLoop(ctx, conn, time.Duration(helloD.HeartbeatInterval)*time.Millisecond, &lastSequence)

	identify, err := json.Marshal(identifyData{
		Token:   g.token,
		Intents: identifyIntents,
		Properties: identifyProperties{
			Os:      runtime.GOOS,
			Browser: "lonetwatch",
			Device:  "lonetwatch",
		},
	})
	if err != nil {
		return err
	}
	err = wsjson.Write(ctx, conn, gatewayPayload{Op: opIdentify, Data: identify})
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	for {
		var payload gatewayPayload
		err = wsjson.Read(ctx, conn, &payload)
		if err != nil {
			return err
		}
		if payload.Sequence != nil {
			lastSequence.Store(*payload.Sequence)
		}

		switch payload.Op {
		case opDispatch:
			g.dispatch(ctx, payload)
		case opHeartbeat:
			err = writeHeartbeat(ctx, conn, lastSequence.Load())
			if err != nil {
				return err
			}
		case opReconnect, opInvalidSession:
			return fmt.Errorf("gateway requested reconnect (op %d)", payload.Op)
		case opHeartbeatAck:
		default:
			slog.DebugContext(ctx, "unhandled gateway opcode", "op", payload.Op)
		}
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, lastSequence *atomic.Int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := writeHeartbeat(ctx, conn, lastSequence.Load())
			if err != nil {
				slog.WarnContext(ctx, "gateway heartbeat failed", "err", err)
				return
			}
		}
	}
}

// the heartbeat payload carries the last seen sequence number as its
// data field, or null before the first dispatch
func writeHeartbeat(ctx context.Context, conn *websocket.Conn, seq int64) error {
	data := json.RawMessage("null")
	if seq >= 0 {
		var err error
		data, err = json.Marshal(seq)
		if err != nil {
			return err
		}
	}
	return wsjson.Write(ctx, conn, gatewayPayload{Op: opHeartbeat, Data: data})
}

func (g *Gateway) dispatch(ctx context.Context, payload gatewayPayload) {
	switch payload.Type {
	case "READY":
		var ready readyData
		err := json.Unmarshal(payload.Data, &ready)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse ready event", "err", err)
			return
		}
		if g.OnReady != nil {
			g.OnReady(ready.User)
		}
	case "MESSAGE_CREATE":
		var msg Message
		err := json.Unmarshal(payload.Data, &msg)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse message event", "err", err)
			return
		}
		if g.OnMessage != nil {
			g.OnMessage(msg)
		}
	}
}
