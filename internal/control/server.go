// ABOUTME: WebSocket control endpoint for external controllers
// ABOUTME: Translates JSON intents into engine commands, fire-and-forget
package control

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kanade-player/kanade-go/internal/engine"
)

// Message is one controller intent. Commands carry no acknowledgment; the
// audible output is the only feedback channel.
type Message struct {
	Op   string `json:"op"`   // "play", "pause" or "resume"
	Path string `json:"path"` // media path for "play"
}

// Server accepts controller connections and forwards their commands.
type Server struct {
	mailbox  *engine.Mailbox
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(addr string, mailbox *engine.Mailbox) *Server {
	s := &Server{
		mailbox: mailbox,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Controllers live on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleControl)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving controller connections until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("Control endpoint listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Control upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("Controller connected: %s", conn.RemoteAddr())
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Controller read error: %v", err)
			}
			return
		}

		cmd, err := msg.Command()
		if err != nil {
			log.Printf("Controller sent bad message: %v", err)
			continue
		}
		if err := s.mailbox.Submit(cmd); err != nil {
			// Engine busy and mailbox full; the command is dropped, as
			// submission never blocks.
			log.Printf("Command %s dropped: %v", cmd.Kind, err)
		}
	}
}

// Command maps a controller message onto an engine command.
func (m Message) Command() (engine.Command, error) {
	switch m.Op {
	case "play":
		if m.Path == "" {
			return engine.Command{}, fmt.Errorf("play without a path")
		}
		return engine.Command{Kind: engine.CommandSwitchSource, Path: m.Path}, nil
	case "pause":
		return engine.Command{Kind: engine.CommandPause}, nil
	case "resume":
		return engine.Command{Kind: engine.CommandResume}, nil
	default:
		return engine.Command{}, fmt.Errorf("unknown op %q", m.Op)
	}
}
