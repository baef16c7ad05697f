package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

const writeWait = 10 * time.Second

// inbound is a frame from the browser: {"type":"message","text":"..."} or
// {"type":"quit"}.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outbound struct {
	Type            string `json:"type"`
	Role            string `json:"role,omitempty"`
	Text            string `json:"text,omitempty"`
	HTML            string `json:"html,omitempty"`
	Termination     string `json:"termination,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	RedirectDelayMS int64  `json:"redirect_delay_ms,omitempty"`
}

func (s *Server) frame(ev interview.Event) outbound {
	out := outbound{
		Type:        string(ev.Kind),
		Role:        string(ev.Role),
		Text:        ev.Text,
		Termination: string(ev.Termination),
		RedirectURL: ev.RedirectURL,
	}
	if ev.Text != "" {
		out.HTML = s.render.HTML(ev.Text)
	}
	if ev.RedirectURL != "" {
		out.RedirectDelayMS = ev.RedirectDelay.Milliseconds()
	}
	return out
}

// chat serves one interview over a websocket. The driver runs on this
// goroutine only; frames are read between turns.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("conn", uuid.NewString())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.active.Add(1)
	defer s.active.Add(-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := func(ev interview.Event) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.frame(ev)); err != nil {
			logger.Debug("websocket write failed", "error", err)
			cancel()
		}
	}

	d := s.newDriver(interview.ParseEntry(r.URL.Query()))
	if err := d.Start(ctx, sink); err != nil && !errors.Is(err, interview.ErrAlreadyCompleted) {
		logger.Warn("session start aborted", "error", err)
		return
	}

	for d.State() != interview.StateTerminated {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			// The respondent closed the page. Only the backup remains.
			logger.Info("respondent disconnected", "state", d.State().String())
			return
		}
		switch msg.Type {
		case "message":
			if err := d.Respond(ctx, msg.Text, sink); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Debug("message ignored", "error", err)
			}
		case "quit":
			d.Quit(ctx, sink)
		default:
			logger.Debug("unknown frame type", "type", msg.Type)
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "interview ended"),
		time.Now().Add(writeWait))
}
