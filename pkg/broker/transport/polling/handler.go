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

package polling

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"vibe-broker/pkg/broker/brokererr"
)

const defaultCols, defaultRows = 80, 24

// pollResponse is the JSON body returned by GET .../poll, matching
// the absolute-cursor contract exactly.
type pollResponse struct {
	Cursor int64  `json:"cursor"`
	Data   string `json:"data"`
	Missed bool   `json:"missed"`
}

// Connect implements POST /terminal/{sid}/connect: attach or resize.
func (tb *Table) Connect(w http.ResponseWriter, r *http.Request, sid string, hostPort int) {
	cols, rows := parseSize(r)

	if err := tb.Attach(sid, hostPort, cols, rows); err != nil {
		writeError(w, err)

		return
	}

	if t := tb.Get(sid); t != nil {
		t.buf.touch()
	}

	w.WriteHeader(http.StatusOK)
}

// Poll implements GET /terminal/{sid}/poll?cursor=K&timeout=T.
func (tb *Table) Poll(w http.ResponseWriter, r *http.Request, sid string) {
	t := tb.Get(sid)
	if t == nil {
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	cursor := parseCursor(r)
	timeout := parseTimeout(r)

	res, ok := t.poll(r.Context(), cursor, timeout)
	if !ok {
		// Client disconnected the in-flight poll; nothing to write.
		return
	}

	if res.gone {
		tb.Remove(sid)
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	t.buf.touch()

	resp := pollResponse{
		Cursor: res.cursor,
		Data:   base64.StdEncoding.EncodeToString(res.data),
		Missed: res.missed,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Input implements POST /terminal/{sid}/input: forward the request body
// verbatim as terminal input.
func (tb *Table) Input(w http.ResponseWriter, r *http.Request, sid string) {
	t := tb.Get(sid)
	if t == nil {
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)

		return
	}

	if err := t.input(body); err != nil {
		tb.Remove(sid)
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	t.buf.touch()
	w.WriteHeader(http.StatusOK)
}

// Resize implements POST /terminal/{sid}/resize?cols=C&rows=R.
func (tb *Table) Resize(w http.ResponseWriter, r *http.Request, sid string) {
	t := tb.Get(sid)
	if t == nil {
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	cols, rows := parseSize(r)

	if err := t.resize(cols, rows); err != nil {
		tb.Remove(sid)
		http.Error(w, "transport gone", http.StatusGone)

		return
	}

	t.buf.touch()
	w.WriteHeader(http.StatusOK)
}

// Disconnect implements POST /terminal/{sid}/disconnect: tear down.
func (tb *Table) Disconnect(w http.ResponseWriter, r *http.Request, sid string) {
	tb.Remove(sid)
	w.WriteHeader(http.StatusOK)
}

func parseSize(r *http.Request) (cols, rows int) {
	cols, rows = defaultCols, defaultRows

	if v := r.URL.Query().Get("cols"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cols = n
		}
	}

	if v := r.URL.Query().Get("rows"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rows = n
		}
	}

	return cols, rows
}

func parseCursor(r *http.Request) int64 {
	v := r.URL.Query().Get("cursor")
	if v == "" {
		return 0
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

func parseTimeout(r *http.Request) time.Duration {
	v := r.URL.Query().Get("timeout")
	if v == "" {
		return minPollTimeout
	}

	secs, err := strconv.Atoi(v)
	if err != nil {
		return minPollTimeout
	}

	return time.Duration(secs) * time.Second
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), brokererr.HTTPStatus(err))
}
