package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"friendsnav/config"
	"friendsnav/db"
	"friendsnav/eta"
	"friendsnav/hub"
	"friendsnav/models"
	"friendsnav/presence"
	"friendsnav/routing"
)

type fixedRouter struct{}

func (fixedRouter) Route(ctx context.Context, from, to routing.Point) (*models.Route, error) {
	return &models.Route{Duration: 720, Distance: 5400}, nil
}

// downStore fails every read.
type downStore struct {
	*db.MemoryStore
}

func (downStore) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	return nil, errors.New("server selection timeout")
}

func newTestApp(t *testing.T, store db.Store) *fiber.App {
	t.Helper()
	ps := presence.New(store, presence.Options{})
	engine := eta.NewEngine(fixedRouter{}, eta.Options{})
	h := hub.NewHub(ps, engine, nil)
	t.Cleanup(h.Close)

	app := fiber.New()
	server := &Server{Sync: ps, Engine: engine, Hub: h, Presence: config.Default().Presence}
	server.Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func createTeam(t *testing.T, app *fiber.App) string {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/api/team", fiber.Map{"name": "Alpha", "creatorId": "user_1"})
	if status != http.StatusCreated {
		t.Fatalf("create team: %d %s", status, body)
	}
	var team models.Team
	_ = json.Unmarshal(body, &team)
	return team.ID
}

func TestAPI_Health(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	status, _ := do(t, app, http.MethodGet, "/api/health", nil)
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
}

func TestAPI_MintUser(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	status, body := do(t, app, http.MethodPost, "/api/user", nil)
	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &out)
	if status != http.StatusOK || len(out.ID) < len("user_") {
		t.Errorf("unexpected response %d %s", status, body)
	}
}

func TestAPI_TeamLifecycle(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	teamID := createTeam(t, app)
	base := "/api/team/" + teamID

	steps := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		expected int
	}{
		{name: "join A", method: http.MethodPost, path: base + "/members", body: fiber.Map{"memberId": "A", "name": "Ann"}, expected: http.StatusCreated},
		{name: "join B", method: http.MethodPost, path: base + "/members", body: fiber.Map{"memberId": "B", "name": "Bob"}, expected: http.StatusCreated},
		{name: "report A", method: http.MethodPut, path: base + "/members/A/location", body: models.Location{Lat: 40.1, Lng: -74.2}, expected: http.StatusNoContent},
		{name: "report unknown", method: http.MethodPut, path: base + "/members/Z/location", body: models.Location{Lat: 1, Lng: 1}, expected: http.StatusConflict},
		{name: "bad location", method: http.MethodPut, path: base + "/members/A/location", body: models.Location{Lat: 95, Lng: 1}, expected: http.StatusBadRequest},
		{name: "set meetup", method: http.MethodPut, path: base + "/meetup", body: models.MeetupPoint{Lat: 40.7, Lng: -74.0, Name: "Cafe"}, expected: http.StatusOK},
		{name: "rename B", method: http.MethodPatch, path: base + "/members/B", body: fiber.Map{"name": "Bobby"}, expected: http.StatusOK},
		{name: "rename without name", method: http.MethodPatch, path: base + "/members/B", body: fiber.Map{"name": ""}, expected: http.StatusBadRequest},
	}

	for _, step := range steps {
		status, body := do(t, app, step.method, step.path, step.body)
		if status != step.expected {
			t.Fatalf("%s: expected %d, got %d %s", step.name, step.expected, status, body)
		}
		t.Logf("✓ %s", step.name)
	}

	status, body := do(t, app, http.MethodGet, base+"/view", nil)
	if status != http.StatusOK {
		t.Fatalf("view: %d %s", status, body)
	}
	var vm models.ViewModel
	_ = json.Unmarshal(body, &vm)
	if len(vm.Members) != 2 || vm.MeetupPoint == nil {
		t.Fatalf("unexpected view %s", body)
	}
	for _, m := range vm.Members {
		switch m.ID {
		case "A":
			if m.ETA == nil || *m.ETA != 720 {
				t.Errorf("A should have an eta: %+v", m)
			}
		case "B":
			if m.Status != models.StatusWaiting || m.Name != "Bobby" {
				t.Errorf("B should be waiting and renamed: %+v", m)
			}
		}
	}

	if status, _ := do(t, app, http.MethodDelete, base+"/members/A", nil); status != http.StatusNoContent {
		t.Fatalf("leave: %d", status)
	}
	if status, _ := do(t, app, http.MethodDelete, base+"/meetup", nil); status != http.StatusNoContent {
		t.Fatalf("clear meetup: %d", status)
	}

	_, body = do(t, app, http.MethodGet, base, nil)
	var team models.Team
	_ = json.Unmarshal(body, &team)
	if _, ok := team.Members["A"]; ok || team.MeetupPoint != nil || len(team.Members) != 1 {
		t.Errorf("unexpected team after leave and clear: %s", body)
	}
}

func TestAPI_LowerCaseTeamID(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	teamID := createTeam(t, app)

	status, _ := do(t, app, http.MethodGet, "/api/team/"+string(bytes.ToLower([]byte(teamID))), nil)
	if status != http.StatusOK {
		t.Errorf("expected lower case id to resolve, got %d", status)
	}
}

func TestAPI_Errors(t *testing.T) {
	tests := []struct {
		name     string
		store    db.Store
		method   string
		path     string
		body     interface{}
		expected int
	}{
		{name: "missing team", store: db.NewMemoryStore(), method: http.MethodGet, path: "/api/team/TEAM_NOPE", expected: http.StatusNotFound},
		{name: "missing team view", store: db.NewMemoryStore(), method: http.MethodGet, path: "/api/team/TEAM_NOPE/view", expected: http.StatusNotFound},
		{name: "join missing team", store: db.NewMemoryStore(), method: http.MethodPost, path: "/api/team/TEAM_NOPE/members", body: fiber.Map{"memberId": "A"}, expected: http.StatusNotFound},
		{name: "join invalid member id", store: db.NewMemoryStore(), method: http.MethodPost, path: "/api/team/TEAM_NOPE/members", body: fiber.Map{"memberId": "a.b"}, expected: http.StatusBadRequest},
		{name: "create without creator", store: db.NewMemoryStore(), method: http.MethodPost, path: "/api/team", body: fiber.Map{"name": "x"}, expected: http.StatusBadRequest},
		{name: "bad limit", store: db.NewMemoryStore(), method: http.MethodGet, path: "/api/teams?limit=0", expected: http.StatusBadRequest},
		{name: "store down", store: downStore{db.NewMemoryStore()}, method: http.MethodGet, path: "/api/team/TEAM_X", expected: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.store)
			status, body := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.expected {
				t.Errorf("expected %d, got %d %s", tt.expected, status, body)
			}
		})
	}
}

func TestAPI_StoreDownIsRetryable(t *testing.T) {
	app := newTestApp(t, downStore{db.NewMemoryStore()})
	_, body := do(t, app, http.MethodGet, "/api/team/TEAM_X", nil)

	var out struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
	}
	_ = json.Unmarshal(body, &out)
	if !out.Retryable {
		t.Errorf("store failures should be marked retryable: %s", body)
	}
}

func TestAPI_RecentTeams(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	first := createTeam(t, app)
	second := createTeam(t, app)

	status, body := do(t, app, http.MethodGet, "/api/teams?limit=10", nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, body)
	}
	var teams []teamListing
	_ = json.Unmarshal(body, &teams)
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %s", body)
	}
	ids := map[string]bool{teams[0].ID: true, teams[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("listing misses a team: %s", body)
	}
}

func TestAPI_MemberKeysSurviveLaterRequests(t *testing.T) {
	store := db.NewMemoryStore()
	app := newTestApp(t, store)
	teamID := createTeam(t, app)
	base := "/api/team/" + teamID

	for _, id := range []string{"A", "B"} {
		if status, body := do(t, app, http.MethodPost, base+"/members", fiber.Map{"memberId": id}); status != http.StatusCreated {
			t.Fatalf("join %s: %d %s", id, status, body)
		}
	}
	if status, body := do(t, app, http.MethodPatch, base+"/members/B", fiber.Map{"name": "Bobby"}); status != http.StatusOK {
		t.Fatalf("rename B: %d %s", status, body)
	}
	if status, body := do(t, app, http.MethodDelete, base+"/members/A", nil); status != http.StatusNoContent {
		t.Fatalf("leave A: %d %s", status, body)
	}

	team, err := store.GetTeam(context.Background(), teamID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if len(team.Members) != 1 {
		t.Fatalf("expected only B, got %+v", team.Members)
	}
	b, ok := team.Members["B"]
	if !ok || b.ID != "B" || b.Name != "Bobby" {
		t.Errorf("B is not stored under its own id: %+v", team.Members)
	}
	t.Logf("✓ members map keyed by %v", b.ID)
}

func TestAPI_MissingCoordinates(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	teamID := createTeam(t, app)
	base := "/api/team/" + teamID
	if status, _ := do(t, app, http.MethodPost, base+"/members", fiber.Map{"memberId": "A"}); status != http.StatusCreated {
		t.Fatalf("join: %d", status)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{name: "empty location", method: http.MethodPut, path: base + "/members/A/location", body: fiber.Map{}},
		{name: "location without lat", method: http.MethodPut, path: base + "/members/A/location", body: fiber.Map{"lng": 1}},
		{name: "empty meetup", method: http.MethodPut, path: base + "/meetup", body: fiber.Map{"name": "Cafe"}},
		{name: "empty waypoint", method: http.MethodPost, path: base + "/waypoints", body: fiber.Map{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := do(t, app, tt.method, tt.path, tt.body); status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d %s", status, body)
			}
		})
	}

	status, body := do(t, app, http.MethodPut, base+"/members/A/location", fiber.Map{"lat": 0, "lng": 0})
	if status != http.StatusNoContent {
		t.Errorf("explicit 0,0 is a valid fix, got %d %s", status, body)
	}

	_, body = do(t, app, http.MethodGet, base, nil)
	var team models.Team
	_ = json.Unmarshal(body, &team)
	if team.MeetupPoint != nil || len(team.Waypoints) != 0 {
		t.Errorf("rejected input changed the team: %s", body)
	}
	if loc := team.Members["A"].Location; loc == nil || loc.Lat != 0 || loc.Lng != 0 {
		t.Errorf("expected A at 0,0, got %+v", loc)
	}
}

func TestAPI_Waypoints(t *testing.T) {
	app := newTestApp(t, db.NewMemoryStore())
	teamID := createTeam(t, app)
	base := "/api/team/" + teamID

	for _, id := range []string{"A", "B"} {
		if status, _ := do(t, app, http.MethodPost, base+"/members", fiber.Map{"memberId": id}); status != http.StatusCreated {
			t.Fatalf("join %s: %d", id, status)
		}
	}
	if status, _ := do(t, app, http.MethodPut, base+"/members/A/location", fiber.Map{"lat": 40.1, "lng": -74.2}); status != http.StatusNoContent {
		t.Fatalf("report A: %d", status)
	}

	status, body := do(t, app, http.MethodPost, base+"/waypoints", fiber.Map{"lat": 40.6, "lng": -74.1, "name": "Pier", "createdBy": "A"})
	if status != http.StatusCreated {
		t.Fatalf("add waypoint: %d %s", status, body)
	}
	var wp models.Waypoint
	_ = json.Unmarshal(body, &wp)
	if wp.ID == "" || wp.Name != "Pier" {
		t.Fatalf("unexpected waypoint %s", body)
	}
	wpBase := base + "/waypoints/" + wp.ID

	status, body = do(t, app, http.MethodGet, wpBase+"/eta", nil)
	var vm models.ViewModel
	_ = json.Unmarshal(body, &vm)
	if status != http.StatusOK || len(vm.Members) != 2 || vm.MeetupPoint == nil || vm.MeetupPoint.WaypointID != wp.ID {
		t.Fatalf("unexpected eta view %d %s", status, body)
	}

	status, body = do(t, app, http.MethodGet, wpBase+"/eta?memberId=A", nil)
	var a models.MemberView
	_ = json.Unmarshal(body, &a)
	if status != http.StatusOK || a.ID != "A" || a.ETA == nil || *a.ETA != 720 {
		t.Errorf("unexpected member eta %d %s", status, body)
	}

	steps := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		expected int
	}{
		{name: "eta of a stranger", method: http.MethodGet, path: wpBase + "/eta?memberId=Z", expected: http.StatusConflict},
		{name: "eta of unknown waypoint", method: http.MethodGet, path: base + "/waypoints/wp_nope/eta", expected: http.StatusNotFound},
		{name: "meetup from unknown waypoint", method: http.MethodPost, path: base + "/waypoints/wp_nope/meetup", expected: http.StatusNotFound},
		{name: "meetup from waypoint", method: http.MethodPost, path: wpBase + "/meetup", body: fiber.Map{"setBy": "A"}, expected: http.StatusOK},
		{name: "remove waypoint", method: http.MethodDelete, path: wpBase, expected: http.StatusNoContent},
		{name: "remove it again", method: http.MethodDelete, path: wpBase, expected: http.StatusNoContent},
		{name: "waypoint on missing team", method: http.MethodPost, path: "/api/team/TEAM_NOPE/waypoints", body: fiber.Map{"lat": 1, "lng": 1}, expected: http.StatusNotFound},
	}
	for _, step := range steps {
		status, body := do(t, app, step.method, step.path, step.body)
		if status != step.expected {
			t.Fatalf("%s: expected %d, got %d %s", step.name, step.expected, status, body)
		}
		t.Logf("✓ %s", step.name)
	}

	_, body = do(t, app, http.MethodGet, base, nil)
	var team models.Team
	_ = json.Unmarshal(body, &team)
	if len(team.Waypoints) != 0 {
		t.Errorf("waypoint not removed: %s", body)
	}
	if mp := team.MeetupPoint; mp == nil || mp.WaypointID != wp.ID || mp.SetBy != "A" || mp.Name != "Pier" {
		t.Errorf("meetup should stay at the removed waypoint: %s", body)
	}
}
