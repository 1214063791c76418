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
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	coreerrors "extrond/core/pkg/errors"
)

const defaultQueryTimeoutMS = 5000

// HandleCtrlRedirect implements handler_ctrl.cpp's bare "/ctrl/<name>"
// case: no action was named, so redirect to the trailing-slash form that
// HandleCtrl treats as "run the default action".
func (h *Handlers) HandleCtrlRedirect(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, c.Request.URL.Path+"/")
}

// HandleCtrl runs one action against one client: /ctrl/<name>/<action>.
// Query-string and JSON-body parameters are merged into a single map and
// handed to the action, mirroring handler_ctrl.cpp's importQueryStrVars +
// JSON body parse.
func (h *Handlers) HandleCtrl(c *gin.Context) {
	name := c.Param("name")
	action := strings.Trim(c.Param("action"), "/")
	if action == "" {
		action = "detail"
	}

	client, ok := h.Engine.Client(name)
	if !ok {
		c.String(http.StatusNotFound, "unknown client %q", name)
		return
	}
	if !client.State().Ready() {
		c.String(http.StatusServiceUnavailable, "not yet connected to device, wait a little...")
		return
	}

	params, err := mergedParams(c)
	if err != nil {
		c.String(http.StatusBadRequest, "bad JSON: %v", err)
		return
	}

	res, err := h.Engine.Query(name, action, params, defaultQueryTimeoutMS)
	if err != nil {
		c.String(statusFor(err), "%v", err)
		return
	}

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	c.Data(status, contentType, []byte(res.Text))
}

// mergedParams folds the query string and (for application/json bodies) the
// request body into one parameter map, query string values winning on
// conflict — same precedence as the original's two-pass field collection.
func mergedParams(c *gin.Context) (map[string]string, error) {
	params := map[string]string{}

	if strings.HasPrefix(c.ContentType(), "application/json") && c.Request.ContentLength > 0 {
		var body map[string]interface{}
		dec := json.NewDecoder(c.Request.Body)
		if err := dec.Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			params[k] = toParamString(v)
		}
	}

	for k, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[k] = values[0]
		}
	}
	return params, nil
}

func toParamString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// statusFor maps a core/bridge error to the HTTP status handler_ctrl.cpp
// would have sent for the equivalent SISClient failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coreerrors.ErrUnknownClient), errors.Is(err, coreerrors.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, coreerrors.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, coreerrors.ErrActionFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
