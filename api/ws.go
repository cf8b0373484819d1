// api/ws.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"friendsnav/hub"
	"friendsnav/location"
)

const leaveTimeout = 5 * time.Second

func (s *Server) registerWebsocket(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// A member connection joins the team, streams its fixes and leaves when it closes.
	// With observer=true the connection only follows the team view.
	app.Get("/ws/:teamID", websocket.New(func(c *websocket.Conn) {
		teamID := strings.ToUpper(c.Params("teamID"))
		memberID := c.Query("memberID")
		name := c.Query("name")
		observer := c.Query("observer") == "true"

		if teamID == "" || (memberID == "" && !observer) {
			log.Println("TeamID or MemberID is missing")
			c.Close()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := hub.NewClient(c, teamID, memberID, name)
		client.Observer = observer
		dispatcher := &hub.Dispatcher{Client: client, Planner: s.Sync, Engine: s.Engine}

		joined := hub.JoinedPayload{
			TeamID:   teamID,
			MemberID: memberID,
			Name:     name,
			Observer: observer,
		}

		if !observer {
			session, err := s.Sync.Join(ctx, teamID, memberID, name)
			if err != nil {
				log.Printf("Member %s could not join team %s: %v", memberID, teamID, err)
				_ = client.Send(hub.NoticeMessage(err))
				c.Close()
				return
			}
			feed := location.NewFeed()
			watchOpts := location.Options{
				HighAccuracy: true,
				Timeout:      s.Presence.LocationTimeout(),
			}
			source := location.NewSource(feed, watchOpts)
			if err := session.Track(ctx, source); err != nil {
				log.Printf("Member %s could not start tracking in team %s: %v", memberID, teamID, err)
			}
			dispatcher.Session = session
			dispatcher.Feed = feed
			joined.Watch = hub.NewWatchPayload(watchOpts)
		}

		if _, err := s.Hub.Attach(client); err != nil {
			log.Printf("Client %s could not attach to team %s: %v", memberID, teamID, err)
			_ = client.Send(hub.NoticeMessage(err))
			if !observer {
				s.leave(teamID, memberID)
			}
			c.Close()
			return
		}

		_ = client.Send(mustMarshal(hub.Message{
			Type:    hub.TypeJoined,
			Payload: mustMarshal(joined),
		}))
		log.Printf("Client %s (%s) connected to team %s", name, memberID, teamID)

		defer func() {
			s.Hub.Detach(client)
			if !observer {
				s.leave(teamID, memberID)
			}
			c.Close()
			log.Printf("Client %s (%s) disconnected from team %s", name, memberID, teamID)
		}()

		// WebSocket message loop
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				break
			}
			dispatcher.Handle(ctx, msg)
		}
	}))
}

func (s *Server) leave(teamID, memberID string) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := s.Sync.Leave(ctx, teamID, memberID); err != nil {
		log.Printf("Failed to remove member %s from team %s: %v", memberID, teamID, err)
	}
}

// Helper to marshal JSON without handling the error everywhere
func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}
