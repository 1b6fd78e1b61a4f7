// Copyright The Vibe Broker Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package socket implements the full-duplex SocketTransport: a single
// bidirectional tunnel between a client's websocket and the
// in-container agent's websocket, held open for the lifetime of either
// endpoint.
package socket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("socket-transport")

const (
	agentSubprotocol = "tty"
	pingInterval     = 20 * time.Second
	pongDeadline     = 20 * time.Second

	// Closure codes the client sees by design
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
	CloseSessionNotFound = 4004
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sizingFrame is the initial, unprefixed JSON frame sent upstream when a
// new agent connection is opened, per the legacy-quirk note.
type sizingFrame struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// Dial opens the upstream connection to the agent at addr (a
// "host:port" pair already resolved by the caller from the session's
// host_port), negotiating the "tty" subprotocol and sending the initial
// sizing frame unprefixed.
func Dial(addr string, cols, rows int) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{agentSubprotocol},
		HandshakeTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("ws://%s/", addr)

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent at %s: %w", addr, err)
	}

	frame, err := json.Marshal(sizingFrame{Columns: cols, Rows: rows})
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("marshal initial sizing frame: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		conn.Close()

		return nil, fmt.Errorf("send initial sizing frame: %w", err)
	}

	return conn, nil
}

// Upgrade upgrades w/r to a client-facing websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// CloseWithCode writes a close control frame with code and a short reason,
// for the unauthorized/forbidden/not-found rejections of the design
func CloseWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

// Bridge runs the tunnel between client and agent until either side
// closes, then closes both connections, which ends the other forwarding
// direction. It returns once both connections are closed.
func Bridge(client, agent *websocket.Conn) {
	agent.SetReadDeadline(time.Now().Add(pingInterval + pongDeadline))
	agent.SetPongHandler(func(string) error {
		agent.SetReadDeadline(time.Now().Add(pingInterval + pongDeadline))

		return nil
	})

	stop := make(chan struct{})
	stopOnce := make(chan struct{})

	closeStop := func() {
		select {
		case <-stopOnce:
		default:
			close(stopOnce)
			close(stop)
		}
	}

	go keepalive(agent, stop)
	go forward(agent, client, "agent->client", closeStop)
	go forward(client, agent, "client->agent", closeStop)

	<-stopOnce
	client.Close()
	agent.Close()
}

// forward relays frames from src to dst, preserving message type (binary
// frames as binary, text frames as text), until src errors or stop is
// signaled by the other direction.
func forward(src, dst *websocket.Conn, label string, onDone func()) {
	defer onDone()

	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			logger.Debugf("%s: read ended: %v", label, err)

			return
		}

		if err := dst.WriteMessage(msgType, data); err != nil {
			logger.Debugf("%s: write ended: %v", label, err)

			return
		}
	}
}

// keepalive pings the agent connection every pingInterval; a missing pong
// lets the read deadline set in Bridge trip, which unblocks the
// agent->client forward call and tears down the tunnel.
func keepalive(agent *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := agent.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
