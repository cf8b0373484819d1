// models/input.go
package models

// Client input carries coordinates as pointers so that a missing lat or lng fails validation
// instead of reading as 0. Call the conversion methods only on validated input.

type LocationReport struct {
	Lat       *float64 `json:"lat" validate:"required,latitude"`
	Lng       *float64 `json:"lng" validate:"required,longitude"`
	Timestamp int64    `json:"timestamp" validate:"gte=0"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
}

func (r LocationReport) Location() Location {
	return Location{Lat: *r.Lat, Lng: *r.Lng, Timestamp: r.Timestamp, Accuracy: r.Accuracy}
}

type MeetupRequest struct {
	Lat   *float64 `json:"lat" validate:"required,latitude"`
	Lng   *float64 `json:"lng" validate:"required,longitude"`
	Name  string   `json:"name" validate:"max=80"`
	SetBy string   `json:"setBy" validate:"max=128"`
}

func (r MeetupRequest) MeetupPoint() MeetupPoint {
	return MeetupPoint{Lat: *r.Lat, Lng: *r.Lng, Name: r.Name, SetBy: r.SetBy}
}

type WaypointRequest struct {
	Lat       *float64 `json:"lat" validate:"required,latitude"`
	Lng       *float64 `json:"lng" validate:"required,longitude"`
	Name      string   `json:"name" validate:"max=80"`
	CreatedBy string   `json:"createdBy" validate:"max=128"`
}
