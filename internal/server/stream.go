package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/signalnine/agentarena/internal/execution"
)

// stream pushes the submission's RunStatus whenever it changes and closes
// once the stored record is terminal.
func (s *Server) stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.opts.Manager.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, s.acceptOptions())
	if err != nil {
		log.Printf("warning: stream %s: accept: %v", id, err)
		return
	}
	defer conn.CloseNow()

	// Reads only serve to notice the client going away.
	ctx := conn.CloseRead(c.Request.Context())
	if err := s.pushStatus(ctx, conn, id); err != nil {
		if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
			log.Printf("warning: stream %s: %v", id, err)
			conn.Close(websocket.StatusInternalError, "stream failed")
		}
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func (s *Server) pushStatus(ctx context.Context, conn *websocket.Conn, id string) error {
	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()

	var last []byte
	for {
		rec, err := s.opts.Manager.Get(ctx, id)
		if err != nil {
			return err
		}
		st, err := s.opts.Manager.Status(ctx, id)
		if err != nil {
			return err
		}
		done := rec.Status.Terminal()
		if done {
			// The record is the source of truth once a result is stored.
			st = rec.RunStatus()
		}
		if last, err = send(ctx, conn, st, last); err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// send writes st unless it is identical to the previous frame.
func send(ctx context.Context, conn *websocket.Conn, st *execution.RunStatus, last []byte) ([]byte, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return last, err
	}
	if bytes.Equal(b, last) {
		return last, nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, st); err != nil {
		return last, err
	}
	return b, nil
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if len(s.opts.AllowOrigins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	var hosts []string
	for _, o := range s.opts.AllowOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		} else {
			hosts = append(hosts, o)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: hosts}
}
