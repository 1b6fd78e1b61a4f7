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

package server

import (
	"html/template"
	"net/http"
)

// These are the broker's only three pages; everything else is JSON or a
// websocket. html/template auto-escapes every field below, so the next
// redirect target and sid are never reflected unescaped.

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><title>vibe-broker</title></head>
<body>
<h1>vibe-broker</h1>
{{if .LoginRequired}}
<p><a href="/login">Log in</a> to start a terminal session.</p>
{{else}}
<form method="post" action="/session/new"><button type="submit">New terminal session</button></form>
{{end}}
</body></html>`))

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>Log in - vibe-broker</title></head>
<body>
<h1>Log in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label>Username <input type="text" name="username" autocomplete="username"></label>
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<button type="submit">Log in</button>
</form>
</body></html>`))

var terminalTemplate = template.Must(template.New("terminal").Parse(`<!doctype html>
<html><head><title>Session {{.SessionID}} - vibe-broker</title></head>
<body data-session-id="{{.SessionID}}">
<div id="terminal"></div>
<script>window.VIBE_SESSION_ID = {{.SessionID}};</script>
</body></html>`))

type indexPageData struct {
	LoginRequired bool
}

type loginPageData struct {
	Next  string
	Error string
}

type terminalPageData struct {
	SessionID string
}

func renderIndexPage(w http.ResponseWriter, loginRequired bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTemplate.Execute(w, indexPageData{LoginRequired: loginRequired})
}

func renderLoginPage(w http.ResponseWriter, next, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTemplate.Execute(w, loginPageData{Next: next, Error: errMsg})
}

func renderTerminalPage(w http.ResponseWriter, sid string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = terminalTemplate.Execute(w, terminalPageData{SessionID: sid})
}
