// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package status describes the agent's status payload and serves it, so the liveness
// check can be exercised without a device.
package status

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type Build struct {
	Version     string `json:"version"`
	BrowserName string `json:"browserName"`
}

type OS struct {
	Arch    string `json:"arch"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Value struct {
	Build Build `json:"build"`
	OS    OS    `json:"os"`
}

// Response is the body of GET /wd/hub/status.
type Response struct {
	Status int   `json:"status"`
	Value  Value `json:"value"`
}

// Default is the static descriptor answered by the agent.
func Default() Response {
	return Response{
		Status: 0,
		Value: Value{
			Build: Build{Version: "0.4-SNAPSHOT", BrowserName: "selendroid"},
			OS:    OS{Arch: "x86", Name: "Android", Version: "0815"},
		},
	}
}

func Decode(body []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return Response{}, fmt.Errorf("decode status payload: %w", err)
	}
	return r, nil
}

// Handler answers GET with payload and every other method with 500.
func Handler(payload Response) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, err := json.Marshal(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(body)
	})
}

// NewMux mounts Handler at path.
func NewMux(path string, payload Response) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(payload))
	return mux
}
