// watch/watch.go
package watch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"friendsnav/hub"
	"friendsnav/models"
	"friendsnav/routing"
)

type Handler struct {
	OnView   func(hub.ViewPayload)
	OnNotice func(hub.NoticePayload)
}

type Options struct {
	// Insecure accepts self-signed server certificates.
	Insecure bool
}

// URL builds the observer websocket address of a team from a server base URL such as
// https://host:3000.
func URL(server, teamID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(teamID)
	u.RawQuery = url.Values{"observer": {"true"}}.Encode()
	return u.String(), nil
}

// Follow streams the views of a team until ctx is done or the server closes the connection.
func Follow(ctx context.Context, wsURL string, opts Options, h Handler) error {
	dialer := *websocket.DefaultDialer
	if opts.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var message hub.Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Println("json unmarshal error:", err)
			continue
		}
		switch message.Type {
		case hub.TypeTeamView:
			var p hub.ViewPayload
			if err := json.Unmarshal(message.Payload, &p); err == nil && h.OnView != nil {
				h.OnView(p)
			}
		case hub.TypeNotice:
			var p hub.NoticePayload
			if err := json.Unmarshal(message.Payload, &p); err == nil && h.OnNotice != nil {
				h.OnNotice(p)
			}
		}
	}
}

// Summarize renders one line per member.
func Summarize(vm *models.ViewModel) []string {
	lines := make([]string, 0, len(vm.Members))
	for _, m := range vm.Members {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		switch {
		case m.Status == models.StatusWaiting:
			lines = append(lines, fmt.Sprintf("%s: waiting for location", name))
		case m.HasETA():
			lines = append(lines, fmt.Sprintf("%s: %s (%s)", name, routing.FormatDuration(*m.ETA), routing.FormatDistance(*m.Distance)))
		case m.ETAUnavailable:
			lines = append(lines, fmt.Sprintf("%s: ETA unavailable", name))
		default:
			lines = append(lines, fmt.Sprintf("%s: %.5f, %.5f", name, m.Location.Lat, m.Location.Lng))
		}
	}
	return lines
}
