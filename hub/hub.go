// hub/hub.go
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"friendsnav/eta"
	"friendsnav/models"
	"friendsnav/routing"
)

// Conn is the write side of a client connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Subscriber pushes complete team snapshots.
type Subscriber interface {
	Subscribe(ctx context.Context, teamID string, onSnapshot func(*models.Team)) (func(), error)
}

// ViewPublisher forwards views outside the process.
type ViewPublisher interface {
	PublishView(ctx context.Context, vm *models.ViewModel) error
}

// Client represents a connected WebSocket client
type Client struct {
	Conn     Conn
	TeamID   string
	MemberID string
	Name     string
	Observer bool

	writeMutex sync.Mutex
}

func NewClient(conn Conn, teamID, memberID, name string) *Client {
	return &Client{Conn: conn, TeamID: teamID, MemberID: memberID, Name: name}
}

// Send writes one text frame. Writes from different goroutines are serialized.
func (c *Client) Send(message []byte) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, message)
}

// Channel is the live view of one team shared by its connected clients.
type Channel struct {
	ID      string
	clients map[*Client]struct{}
	mutex   sync.RWMutex

	tracker     *eta.Tracker
	unsubscribe func()
	publisher   ViewPublisher

	lastView    *models.ViewModel
	lastMessage []byte
}

// Hub manages all team channels
type Hub struct {
	Channels map[string]*Channel
	mutex    sync.RWMutex

	subscriber Subscriber
	engine     *eta.Engine
	publisher  ViewPublisher
}

// NewHub creates a new hub instance. publisher may be nil.
func NewHub(subscriber Subscriber, engine *eta.Engine, publisher ViewPublisher) *Hub {
	return &Hub{
		Channels:   make(map[string]*Channel),
		subscriber: subscriber,
		engine:     engine,
		publisher:  publisher,
	}
}

// Attach adds a client to its team's channel, opening the channel and its store subscription
// on first use. The client immediately receives the current view if there is one.
func (h *Hub) Attach(client *Client) (*Channel, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	channel, exists := h.Channels[client.TeamID]
	if !exists {
		channel = &Channel{
			ID:        client.TeamID,
			clients:   make(map[*Client]struct{}),
			publisher: h.publisher,
		}
		channel.tracker = eta.NewTracker(h.engine, channel.publish)
		// the channel outlives the request that opened it
		unsubscribe, err := h.subscriber.Subscribe(context.Background(), client.TeamID, channel.tracker.Update)
		if err != nil {
			channel.tracker.Close()
			return nil, err
		}
		channel.unsubscribe = unsubscribe
		h.Channels[client.TeamID] = channel
		log.Printf("Channel %s opened", client.TeamID)
	}

	channel.AddClient(client)
	return channel, nil
}

// Detach removes a client and closes its channel once nobody is left.
func (h *Hub) Detach(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	channel, exists := h.Channels[client.TeamID]
	if !exists {
		return
	}
	channel.RemoveClient(client)
	if channel.GetMemberCount() > 0 {
		return
	}
	delete(h.Channels, client.TeamID)
	channel.unsubscribe()
	channel.tracker.Close()
	log.Printf("Channel %s removed (empty)", client.TeamID)
}

// GetChannel gets an existing channel
func (h *Hub) GetChannel(teamID string) *Channel {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.Channels[teamID]
}

// Notice reports err to the clients of memberID in a team, or to every client of the team
// when memberID is empty.
func (h *Hub) Notice(teamID, memberID string, err error) {
	channel := h.GetChannel(teamID)
	if channel == nil {
		log.Printf("Notice for team %s without clients: %v", teamID, err)
		return
	}
	message := NoticeMessage(err)
	if memberID == "" {
		channel.BroadcastToAll(message)
		return
	}
	channel.SendToTarget(memberID, message)
}

// Close detaches everything, used on shutdown.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, channel := range h.Channels {
		channel.unsubscribe()
		channel.tracker.Close()
		delete(h.Channels, id)
	}
}

// AddClient adds a client to the channel and sends it the latest view.
func (ch *Channel) AddClient(client *Client) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.clients[client] = struct{}{}
	if ch.lastMessage != nil {
		if err := client.Send(ch.lastMessage); err != nil {
			log.Printf("Error sending view to %s: %v", client.MemberID, err)
		}
	}
}

// RemoveClient removes a client from the channel
func (ch *Channel) RemoveClient(client *Client) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	delete(ch.clients, client)
}

// GetMemberCount returns the number of clients in the channel
func (ch *Channel) GetMemberCount() int {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()
	return len(ch.clients)
}

// LastView returns the most recently published view, nil before the first one.
func (ch *Channel) LastView() *models.ViewModel {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()
	return ch.lastView
}

func (ch *Channel) publish(vm *models.ViewModel) {
	ch.mutex.Lock()
	changes := eta.Diff(ch.lastView, vm)
	ch.lastView = vm
	ch.lastMessage = mustMarshal(Message{Type: TypeTeamView, Payload: mustMarshal(newViewPayload(vm, changes))})
	for client := range ch.clients {
		if err := client.Send(ch.lastMessage); err != nil {
			log.Printf("Error broadcasting view: %v", err)
		}
	}
	ch.mutex.Unlock()

	if ch.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ch.publisher.PublishView(ctx, vm); err != nil {
			log.Printf("Error publishing view for team %s: %v", vm.TeamID, err)
		}
	}
}

func newViewPayload(vm *models.ViewModel, changes eta.Changes) ViewPayload {
	p := ViewPayload{View: vm, Changes: changes}
	for _, m := range vm.Members {
		if vm.MeetupPoint != nil && m.Location != nil {
			if p.Heading == nil {
				p.Heading = map[string]float64{}
			}
			p.Heading[m.ID] = routing.Bearing(
				routing.Point{Lat: m.Location.Lat, Lng: m.Location.Lng},
				routing.Point{Lat: vm.MeetupPoint.Lat, Lng: vm.MeetupPoint.Lng},
			)
		}
		if !m.HasETA() {
			continue
		}
		if p.ETAText == nil {
			p.ETAText = map[string]string{}
			p.DistanceText = map[string]string{}
		}
		p.ETAText[m.ID] = routing.FormatDuration(*m.ETA)
		p.DistanceText[m.ID] = routing.FormatDistance(*m.Distance)
	}
	return p
}

// BroadcastToAll sends a message to all clients in the channel
func (ch *Channel) BroadcastToAll(message []byte) {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()

	for client := range ch.clients {
		if err := client.Send(message); err != nil {
			log.Printf("Error broadcasting message: %v", err)
		}
	}
}

// SendToTarget sends a message to every connection of one member
func (ch *Channel) SendToTarget(memberID string, message []byte) {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()

	found := false
	for client := range ch.clients {
		if client.MemberID == memberID {
			found = true
			if err := client.Send(message); err != nil {
				log.Printf("Error sending message to target %s: %v", memberID, err)
			}
		}
	}
	if !found {
		log.Printf("Target member %s not found in channel %s", memberID, ch.ID)
	}
}
