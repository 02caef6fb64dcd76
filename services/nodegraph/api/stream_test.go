// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

func TestHub_SubscribeAndFanOut(t *testing.T) {
	hub := NewHub(HubOptions{Buffer: 1})

	id1, ch1, err := hub.Subscribe()
	require.NoError(t, err)
	_, ch2, err := hub.Subscribe()
	require.NoError(t, err)
	assert.Len(t, id1, 12)
	assert.Equal(t, 2, hub.Clients())

	hub.ObserveTick(context.Background(), host.TickReport{Seq: 1})
	assert.Equal(t, uint64(1), (<-ch1).Seq)

	// ch2 still holds seq 1, so seq 2 is dropped for it only.
	hub.ObserveTick(context.Background(), host.TickReport{Seq: 2})
	assert.Equal(t, uint64(1), hub.Dropped())
	assert.Equal(t, uint64(2), (<-ch1).Seq)
	assert.Equal(t, uint64(1), (<-ch2).Seq)

	hub.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)
	hub.Unsubscribe(id1)
	assert.Equal(t, 1, hub.Clients())

	hub.Close()
	_, open = <-ch2
	assert.False(t, open)
	_, _, err = hub.Subscribe()
	assert.ErrorIs(t, err, ErrHubClosed)
	hub.Close()
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/nodegraph/stream"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestHandleStream_DeliversTicks(t *testing.T) {
	hub := NewHub(HubOptions{})
	f := newFixture(t, Options{Hub: hub})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ws := dialStream(t, srv)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello StreamMessage
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.ClientID)
	assert.Equal(t, 1, hub.Clients())

	f.graph.Tick()
	hub.ObserveTick(context.Background(), host.TickReport{Seq: f.graph.Ticks(), Delivered: 2})

	var tick StreamMessage
	require.NoError(t, ws.ReadJSON(&tick))
	assert.Equal(t, "tick", tick.Type)
	require.NotNil(t, tick.Tick)
	assert.Equal(t, uint64(1), tick.Tick.Seq)
	assert.Equal(t, 2, tick.Tick.Delivered)
}

func TestHandleStream_CloseSendsGoingAway(t *testing.T) {
	hub := NewHub(HubOptions{})
	f := newFixture(t, Options{Hub: hub})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ws := dialStream(t, srv)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello StreamMessage
	require.NoError(t, ws.ReadJSON(&hello))

	hub.Close()

	var msg StreamMessage
	err := ws.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHandleStream_ClosedHub(t *testing.T) {
	hub := NewHub(HubOptions{})
	hub.Close()
	f := newFixture(t, Options{Hub: hub})

	w := f.do(t, http.MethodGet, "/v1/nodegraph/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STREAM_CLOSED", decode[ErrorResponse](t, w).Code)
}

func TestHandleStream_DisconnectUnsubscribes(t *testing.T) {
	hub := NewHub(HubOptions{})
	f := newFixture(t, Options{Hub: hub})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ws := dialStream(t, srv)
	var hello StreamMessage
	require.NoError(t, ws.ReadJSON(&hello))
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool { return f.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
