/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kubesentry/investigator/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const pingInterval = 20 * time.Second

// handleStream upgrades the connection and relays every message published
// on topic as a JSON websocket frame until the client disconnects.
func (s *Server) handleStream(topic eventbus.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error(err, "websocket upgrade failed", "topic", topic)
			return
		}
		defer conn.Close()

		sub := s.bus.Subscribe(topic)
		defer sub.Unsubscribe()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteJSON(payload); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
