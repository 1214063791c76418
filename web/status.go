// Copyright (c) 2024 The extrond Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"extrond/core"
)

// clientRow is one line of /status, grounded on handler_status.cpp's
// ResponseFormatter column set (name, host, port, connection state, time
// in state, link).
type clientRow struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	State       string `json:"cstate"`
	TimeInState string `json:"cstateTime"`
	Link        string `json:"link"`
}

// statusPage is the full JSON shape of /status: the per-client rows plus
// a summary of whatever bridge queries are currently in flight, read off
// core.GlobalTimeouts so a stuck device is visible without grepping logs.
type statusPage struct {
	Clients       []clientRow `json:"clients"`
	InFlight      int         `json:"inFlight"`
	OldestClient  string      `json:"oldestClient,omitempty"`
	OldestAction  string      `json:"oldestAction,omitempty"`
	OldestWaiting string      `json:"oldestWaiting,omitempty"`
}

// HandleStatus lists every configured client, either as an HTML table or,
// with ?json or an Accept: application/json header, as JSON. A path
// segment beyond /status (e.g. /status/foo) 301-redirects back to /status,
// matching handler_status.cpp's "query has a slash in it" redirect rule.
func (h *Handlers) HandleStatus(c *gin.Context) {
	if rest := c.Param("rest"); rest != "" && rest != "/" {
		c.Redirect(http.StatusMovedPermanently, "/status")
		return
	}

	clients := h.Engine.Clients()
	rows := make([]clientRow, 0, len(clients))
	for _, cl := range clients {
		rows = append(rows, clientRow{
			Name:        cl.Name,
			Host:        cl.Host(),
			Port:        cl.Port(),
			State:       cl.State().String(),
			TimeInState: cl.TimeInState().String(),
			Link:        fmt.Sprintf("/ctrl/%s/", cl.Name),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	page := statusPage{Clients: rows, InFlight: core.GlobalTimeouts.Len()}
	if oldestClient, oldestAction, deadline, ok := core.GlobalTimeouts.Oldest(); ok {
		page.OldestClient = oldestClient
		page.OldestAction = oldestAction
		page.OldestWaiting = time.Until(deadline).String()
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, page)
		return
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("(This page is also available as <a href=\"?json\">JSON</a>)<br />\n")
	fmt.Fprintf(&b, "%d clients configured:<br />\n", len(rows))
	if page.InFlight > 0 {
		fmt.Fprintf(&b, "%d queries in flight, oldest: %s/%s (deadline in %s)<br />\n",
			page.InFlight, page.OldestClient, page.OldestAction, page.OldestWaiting)
	}
	b.WriteString("<table border=\"1\"><tr><th>Name</th><th>Host</th><th>Port</th><th>Connection state</th><th>Time in state</th><th>Link</th></tr>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td><a href=\"%s\">Go</a></td></tr>",
			r.Name, r.Host, r.Port, r.State, r.TimeInState, r.Link)
	}
	b.WriteString("</table></body></html>")

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

func wantsJSON(c *gin.Context) bool {
	if _, ok := c.GetQuery("json"); ok {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
