// hub/dispatch.go
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"friendsnav/eta"
	"friendsnav/location"
	"friendsnav/models"
	"friendsnav/presence"
	"friendsnav/routing"
)

var validate = validator.New()

// Planner is the part of the synchronizer that incoming client messages drive.
type Planner interface {
	SetMeetup(ctx context.Context, teamID string, point models.MeetupPoint) error
	ClearMeetup(ctx context.Context, teamID string) error
	AddWaypoint(ctx context.Context, teamID string, req models.WaypointRequest) (*models.Waypoint, error)
	RemoveWaypoint(ctx context.Context, teamID, waypointID string) error
	SetMeetupWaypoint(ctx context.Context, teamID, waypointID, setBy string) error
	Waypoint(ctx context.Context, teamID, waypointID string) (*models.Team, models.Waypoint, error)
}

// Dispatcher routes the messages of one websocket connection. Session and Feed are nil for
// observers, who may only manage the meet-up point and the waypoints.
type Dispatcher struct {
	Client  *Client
	Planner Planner
	Engine  *eta.Engine
	Session *presence.Session
	Feed    *location.Feed
}

func (d *Dispatcher) Handle(ctx context.Context, raw []byte) {
	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		log.Println("json unmarshal error:", err)
		return
	}
	message.Sender = d.Client.MemberID

	var err error
	switch message.Type {
	case TypeLocation:
		var report models.LocationReport
		if err = decode(message.Payload, &report); err == nil {
			if d.Feed == nil {
				err = presence.ErrNotJoined
				break
			}
			d.Feed.Push(report.Location())
		}
	case TypeLocationError:
		var payload LocationErrorPayload
		if err = decode(message.Payload, &payload); err == nil && d.Feed != nil {
			d.Feed.Fail(location.ParseCode(payload.Code))
		}
	case TypeSetMeetup:
		var req models.MeetupRequest
		if err = decode(message.Payload, &req); err == nil {
			point := req.MeetupPoint()
			point.SetBy = d.Client.MemberID
			err = d.Planner.SetMeetup(ctx, d.Client.TeamID, point)
		}
	case TypeClearMeetup:
		err = d.Planner.ClearMeetup(ctx, d.Client.TeamID)
	case TypeRename:
		var payload RenamePayload
		if err = decode(message.Payload, &payload); err == nil {
			if d.Session == nil {
				err = presence.ErrNotJoined
				break
			}
			if err = d.Session.Rename(ctx, payload.Name); err == nil {
				d.Client.Name = payload.Name
			}
		}
	case TypeAddWaypoint:
		var req models.WaypointRequest
		if err = decode(message.Payload, &req); err == nil {
			req.CreatedBy = d.Client.MemberID
			_, err = d.Planner.AddWaypoint(ctx, d.Client.TeamID, req)
		}
	case TypeRemoveWaypoint:
		var ref WaypointRefPayload
		if err = decode(message.Payload, &ref); err == nil {
			err = d.Planner.RemoveWaypoint(ctx, d.Client.TeamID, ref.WaypointID)
		}
	case TypeMeetupWaypoint:
		var ref WaypointRefPayload
		if err = decode(message.Payload, &ref); err == nil {
			err = d.Planner.SetMeetupWaypoint(ctx, d.Client.TeamID, ref.WaypointID, d.Client.MemberID)
		}
	case TypeWaypointETARequest:
		var ref WaypointRefPayload
		if err = decode(message.Payload, &ref); err == nil {
			err = d.sendWaypointETA(ctx, ref.WaypointID)
		}
	default:
		log.Printf("Unknown message type %q from %s", message.Type, d.Client.MemberID)
		return
	}

	if err != nil {
		log.Printf("Message %s from %s in team %s failed: %v", message.Type, d.Client.MemberID, d.Client.TeamID, err)
		if sendErr := d.Client.Send(NoticeMessage(err)); sendErr != nil {
			log.Printf("Error sending notice to %s: %v", d.Client.MemberID, sendErr)
		}
	}
}

func (d *Dispatcher) sendWaypointETA(ctx context.Context, waypointID string) error {
	team, wp, err := d.Planner.Waypoint(ctx, d.Client.TeamID, waypointID)
	if err != nil {
		return err
	}
	if !d.Client.Observer {
		if _, ok := team.Members[d.Client.MemberID]; !ok {
			return presence.ErrNotJoined
		}
	}

	vm := d.Engine.ComputeToward(ctx, team, wp)
	p := WaypointETAPayload{WaypointID: wp.ID, Name: wp.Name, Members: []models.MemberView{}}
	for _, m := range vm.Members {
		if !d.Client.Observer && m.ID != d.Client.MemberID {
			continue
		}
		p.Members = append(p.Members, m)
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
	return d.Client.Send(mustMarshal(Message{Type: TypeWaypointETA, Payload: mustMarshal(p)}))
}

// decode unmarshals and validates a client payload.
func decode(payload json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", presence.ErrInvalidInput, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", presence.ErrInvalidInput, err)
	}
	return nil
}
