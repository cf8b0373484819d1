// hub/messages.go
package hub

import (
	"encoding/json"
	"errors"

	"friendsnav/eta"
	"friendsnav/location"
	"friendsnav/models"
	"friendsnav/presence"
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender,omitempty"`
	Target  string          `json:"target,omitempty"`
}

// Outgoing message types.
const (
	TypeJoined      = "joined"
	TypeTeamView    = "team-view"
	TypeNotice      = "notice"
	TypeWaypointETA = "waypoint-eta"
)

// Incoming message types.
const (
	TypeLocation      = "location"
	TypeLocationError = "location-error"
	TypeSetMeetup     = "set-meetup"
	TypeClearMeetup   = "clear-meetup"
	TypeRename        = "rename"

	TypeAddWaypoint    = "add-waypoint"
	TypeRemoveWaypoint = "remove-waypoint"
	TypeMeetupWaypoint = "meetup-waypoint"
	// answered with TypeWaypointETA to the sender only
	TypeWaypointETARequest = "waypoint-eta-request"
)

// Notice codes.
const (
	NoticeStoreUnavailable    = "store_unavailable"
	NoticeLocationUnavailable = "location_unavailable"
	NoticeTeamNotFound        = "team_not_found"
	NoticeNotJoined           = "not_joined"
	NoticeInvalidInput        = "invalid_input"
	NoticeWaypointNotFound    = "waypoint_not_found"
	NoticeError               = "error"
)

type JoinedPayload struct {
	TeamID   string `json:"teamId"`
	MemberID string `json:"memberId,omitempty"`
	Name     string `json:"name,omitempty"`
	Observer bool   `json:"observer,omitempty"`
	// how the client should watch its device position, absent for observers
	Watch *WatchPayload `json:"watch,omitempty"`
}

// WatchPayload carries location.Options in the shape of the browser's PositionOptions.
type WatchPayload struct {
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	Timeout            int64 `json:"timeout,omitempty"`
	MaximumAge         int64 `json:"maximumAge,omitempty"`
}

func NewWatchPayload(opts location.Options) *WatchPayload {
	return &WatchPayload{
		EnableHighAccuracy: opts.HighAccuracy,
		Timeout:            opts.Timeout.Milliseconds(),
		MaximumAge:         opts.MaximumAge.Milliseconds(),
	}
}

type ViewPayload struct {
	View    *models.ViewModel `json:"view"`
	Changes eta.Changes       `json:"changes"`
	// display strings keyed by member id
	ETAText      map[string]string `json:"etaText,omitempty"`
	DistanceText map[string]string `json:"distanceText,omitempty"`
	// compass bearing from each located member to the meetup point
	Heading map[string]float64 `json:"heading,omitempty"`
}

type NoticePayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type LocationErrorPayload struct {
	Code string `json:"code"`
}

type RenamePayload struct {
	Name string `json:"name"`
}

type WaypointRefPayload struct {
	WaypointID string `json:"waypointId" validate:"required"`
}

// WaypointETAPayload answers a waypoint-eta-request. Members get their own entry, observers
// get everyone.
type WaypointETAPayload struct {
	WaypointID   string              `json:"waypointId"`
	Name         string              `json:"name"`
	Members      []models.MemberView `json:"members"`
	ETAText      map[string]string   `json:"etaText,omitempty"`
	DistanceText map[string]string   `json:"distanceText,omitempty"`
}

// NoticeFor classifies err for display.
func NoticeFor(err error) NoticePayload {
	n := NoticePayload{Code: NoticeError, Message: err.Error()}
	switch {
	case errors.Is(err, presence.ErrStoreUnavailable):
		n.Code = NoticeStoreUnavailable
		n.Retryable = true
	case errors.Is(err, location.ErrUnavailable):
		n.Code = NoticeLocationUnavailable
		if code, ok := location.CodeOf(err); ok {
			n.Reason = string(code)
		}
	case errors.Is(err, presence.ErrTeamNotFound):
		n.Code = NoticeTeamNotFound
	case errors.Is(err, presence.ErrNotJoined):
		n.Code = NoticeNotJoined
	case errors.Is(err, presence.ErrInvalidInput):
		n.Code = NoticeInvalidInput
	case errors.Is(err, presence.ErrWaypointNotFound):
		n.Code = NoticeWaypointNotFound
	}
	return n
}

func NoticeMessage(err error) []byte {
	return mustMarshal(Message{Type: TypeNotice, Payload: mustMarshal(NoticeFor(err))})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}
