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

// Package polling implements PollingTransport of the design: a
// broker-maintained upstream socket to the in-container agent, fronted
// by stateless HTTP endpoints with a bounded replay buffer so a client
// that drops its TCP connection can resume without losing output.
package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"vibe-broker/pkg/broker/transport/socket"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("polling-transport")

const (
	// Agent wire protocol command bytes, by design
	cmdOutput = '0'
	cmdTitle  = '1'
	cmdPrefs  = '2'
	cmdInput  = '0'
	cmdResize = '1'

	minPollTimeout = 1 * time.Second
	maxPollTimeout = 60 * time.Second

	idleTimeout = 5 * time.Minute
)

// resizeFrame is the broker->agent resize payload, command-prefixed.
type resizeFrame struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// Transport is one session's polling-mode bridge to its agent.
type Transport struct {
	sid      string
	upstream *websocket.Conn
	buf      *ringBuffer
	readerWG chan struct{}
}

// newTransport dials the agent, sends the initial sizing frame, and
// starts the reader task. Mirrors SocketTransport's dial step but keeps
// the connection open across many HTTP requests instead of one socket.
func newTransport(sid string, agentAddr string, cols, rows int) (*Transport, error) {
	conn, err := socket.Dial(agentAddr, cols, rows)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		sid:      sid,
		upstream: conn,
		buf:      newRingBuffer(),
		readerWG: make(chan struct{}),
	}

	go t.readLoop()

	return t, nil
}

// readLoop is the reader task of the design: parses command-prefixed
// frames from the upstream forever, appending output bytes to the
// buffer and ignoring title/preference frames, until the upstream
// closes or errors.
func (t *Transport) readLoop() {
	defer close(t.readerWG)
	defer t.buf.markDisconnected()

	for {
		_, data, err := t.upstream.ReadMessage()
		if err != nil {
			logger.Debugf("session %s: upstream read ended: %v", t.sid, err)

			return
		}

		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case cmdOutput:
			t.buf.append(data[1:])
		case cmdTitle, cmdPrefs:
			// Ignored by design
		default:
			logger.Warnf("session %s: unknown agent command byte %q", t.sid, data[0])
		}
	}
}

// alive reports whether the upstream socket is still usable: the reader
// task hasn't observed a close/error, and a lightweight probe write
// succeeds.
func (t *Transport) alive() bool {
	if !t.buf.isAlive() {
		return false
	}

	return t.probe()
}

// probe sends a zero-length ping to detect a silently-dead upstream
// socket before reusing it on a new attach.
func (t *Transport) probe() bool {
	err := t.upstream.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second))

	return err == nil
}

// resize sends a resize frame upstream.
func (t *Transport) resize(cols, rows int) error {
	payload, err := json.Marshal(resizeFrame{Columns: cols, Rows: rows})
	if err != nil {
		return err
	}

	return t.sendFramed(cmdResize, payload)
}

// input forwards body as terminal input.
func (t *Transport) input(body []byte) error {
	return t.sendFramed(cmdInput, body)
}

func (t *Transport) sendFramed(cmd byte, payload []byte) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = cmd
	copy(frame[1:], payload)

	if err := t.upstream.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.buf.markDisconnected()

		return fmt.Errorf("write upstream frame: %w", err)
	}

	return nil
}

func (t *Transport) close() {
	t.buf.markDisconnected()
	t.upstream.Close()
}

// poll implements the absolute-cursor long-poll: an
// immediate return if data is already available, otherwise parking up
// to timeout (clamped to [1, 60]s), re-checking on wake.
func (t *Transport) poll(ctx context.Context, cursor int64, timeout time.Duration) (pollResult, bool) {
	if timeout < minPollTimeout {
		timeout = minPollTimeout
	}

	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}

	if res, ok := t.buf.readAt(cursor); ok {
		return res, true
	}

	waiter := t.buf.park()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waiter:
	case <-timer.C:
	case <-ctx.Done():
		return pollResult{}, false
	}

	if res, ok := t.buf.readAt(cursor); ok {
		return res, true
	}

	// Woken or timed out with nothing new: empty response, not gone.
	tail := t.buf.tailSnapshot()

	return pollResult{cursor: tail}, true
}

func (b *ringBuffer) tailSnapshot() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tailLocked()
}
