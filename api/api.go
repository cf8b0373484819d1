// api/api.go
package api

import (
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"friendsnav/config"
	"friendsnav/eta"
	"friendsnav/hub"
	"friendsnav/models"
	"friendsnav/presence"
)

type Server struct {
	Sync     *presence.Synchronizer
	Engine   *eta.Engine
	Hub      *hub.Hub
	Presence config.PresenceConfig

	validate *validator.Validate
}

type teamListing struct {
	models.RecentTeam
	Online int `json:"online"`
}

type createTeamRequest struct {
	Name      string `json:"name" validate:"max=80"`
	CreatorID string `json:"creatorId" validate:"required,excludesall=.$"`
}

type joinRequest struct {
	MemberID string `json:"memberId" validate:"required,excludesall=.$"`
	Name     string `json:"name" validate:"max=40"`
}

type setMeetupWaypointRequest struct {
	SetBy string `json:"setBy" validate:"max=128"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=40"`
}

// Register mounts the HTTP API and the websocket endpoint.
func (s *Server) Register(app *fiber.App) {
	s.validate = validator.New()

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Mint a member id
	api.Post("/user", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": presence.NewMemberID()})
	})

	// Create a new team
	api.Post("/team", func(c *fiber.Ctx) error {
		var body createTeamRequest
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		team, err := s.Sync.CreateTeam(c.UserContext(), body.Name, body.CreatorID)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(team)
	})

	// Recently created teams with the number of connected clients
	api.Get("/teams", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", s.Presence.RecentTeamsLimit)
		if limit <= 0 || limit > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 100"})
		}
		teams, err := s.Sync.RecentTeams(c.UserContext(), limit)
		if err != nil {
			return writeError(c, err)
		}

		listing := make([]teamListing, 0, len(teams))
		for _, team := range teams {
			entry := teamListing{RecentTeam: team}
			if channel := s.Hub.GetChannel(team.ID); channel != nil {
				entry.Online = channel.GetMemberCount()
			}
			listing = append(listing, entry)
		}
		return c.JSON(listing)
	})

	// Get team by ID
	api.Get("/team/:id", func(c *fiber.Ctx) error {
		team, err := s.Sync.Team(c.UserContext(), teamID(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(team)
	})

	// Current ETA view of a team
	api.Get("/team/:id/view", func(c *fiber.Ctx) error {
		id := teamID(c)
		if channel := s.Hub.GetChannel(id); channel != nil {
			if vm := channel.LastView(); vm != nil {
				return c.JSON(vm)
			}
		}
		team, err := s.Sync.Team(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(s.Engine.Compute(c.UserContext(), team))
	})

	api.Post("/team/:id/members", func(c *fiber.Ctx) error {
		var body joinRequest
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		sess, err := s.Sync.Join(c.UserContext(), teamID(c), body.MemberID, body.Name)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"teamId":   sess.TeamID,
			"memberId": sess.MemberID,
			"state":    sess.State().String(),
		})
	})

	api.Put("/team/:id/members/:memberId/location", func(c *fiber.Ctx) error {
		var body models.LocationReport
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := s.Sync.ReportLocation(c.UserContext(), teamID(c), memberID(c), body.Location()); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Patch("/team/:id/members/:memberId", func(c *fiber.Ctx) error {
		var body renameRequest
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := s.Sync.Rename(c.UserContext(), teamID(c), memberID(c), body.Name); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	api.Delete("/team/:id/members/:memberId", func(c *fiber.Ctx) error {
		if err := s.Sync.Leave(c.UserContext(), teamID(c), memberID(c)); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Put("/team/:id/meetup", func(c *fiber.Ctx) error {
		var body models.MeetupRequest
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := s.Sync.SetMeetup(c.UserContext(), teamID(c), body.MeetupPoint()); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	api.Delete("/team/:id/meetup", func(c *fiber.Ctx) error {
		if err := s.Sync.ClearMeetup(c.UserContext(), teamID(c)); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/team/:id/waypoints", func(c *fiber.Ctx) error {
		var body models.WaypointRequest
		if err := s.parse(c, &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		wp, err := s.Sync.AddWaypoint(c.UserContext(), teamID(c), body)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(wp)
	})

	api.Delete("/team/:id/waypoints/:wpId", func(c *fiber.Ctx) error {
		if err := s.Sync.RemoveWaypoint(c.UserContext(), teamID(c), waypointID(c)); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Make a waypoint the meetup point
	api.Post("/team/:id/waypoints/:wpId/meetup", func(c *fiber.Ctx) error {
		var body setMeetupWaypointRequest
		if len(c.Body()) > 0 {
			if err := s.parse(c, &body); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}
		if err := s.Sync.SetMeetupWaypoint(c.UserContext(), teamID(c), waypointID(c), body.SetBy); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	})

	// ETAs toward a waypoint without moving the meetup. With ?memberId only that member is returned.
	api.Get("/team/:id/waypoints/:wpId/eta", func(c *fiber.Ctx) error {
		team, wp, err := s.Sync.Waypoint(c.UserContext(), teamID(c), waypointID(c))
		if err != nil {
			return writeError(c, err)
		}
		member := c.Query("memberId")
		if member != "" {
			if _, ok := team.Members[member]; !ok {
				return writeError(c, presence.ErrNotJoined)
			}
		}
		vm := s.Engine.ComputeToward(c.UserContext(), team, wp)
		if member == "" {
			return c.JSON(vm)
		}
		for _, m := range vm.Members {
			if m.ID == member {
				return c.JSON(m)
			}
		}
		return writeError(c, presence.ErrNotJoined)
	})

	s.registerWebsocket(app)
}

// teamID accepts ids in any case; minted ids are upper case. Route params point into a buffer
// fiber reuses once the handler returns, and ids outlive the request as store and session keys,
// so they are copied.
func teamID(c *fiber.Ctx) string {
	return utils.CopyString(strings.ToUpper(c.Params("id")))
}

func memberID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("memberId"))
}

func waypointID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("wpId"))
}

var errCannotParse = errors.New("cannot parse json")

func (s *Server) parse(c *fiber.Ctx, body interface{}) error {
	if err := c.BodyParser(body); err != nil {
		return errCannotParse
	}
	return s.validate.Struct(body)
}

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, presence.ErrTeamNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "team not found"})
	case errors.Is(err, presence.ErrWaypointNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "waypoint not found"})
	case errors.Is(err, presence.ErrNotJoined):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, presence.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, presence.ErrStoreUnavailable):
		log.Printf("Store unavailable on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "team store unavailable", "retryable": true})
	}
	log.Printf("Unexpected error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
