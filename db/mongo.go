// db/mongo.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"friendsnav/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per team in the teams collection. Subscriptions are served
// from change streams, so the server must run as a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	teams  *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := newMongoStore(client.Database(database))

	_, err = s.teams.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create teams index: %w", err)
	}
	return s, nil
}

func newMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{client: db.Client(), db: db, teams: db.Collection("teams")}
}

func (s *MongoStore) CreateTeam(ctx context.Context, team *models.Team) error {
	doc := team.Clone()
	if doc.Members == nil {
		doc.Members = map[string]models.Member{}
	}
	_, err := s.teams.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrTeamExists
	}
	return err
}

func (s *MongoStore) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	err := s.teams.FindOne(ctx, bson.M{"_id": teamID}).Decode(&team)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *MongoStore) PutMember(ctx context.Context, teamID string, member models.Member) error {
	key, err := memberKey(member.ID)
	if err != nil {
		return err
	}
	return s.updateTeam(ctx, bson.M{"_id": teamID}, bson.M{"$set": bson.M{key: member}})
}

func (s *MongoStore) UpdateMemberLocation(ctx context.Context, teamID, memberID string, loc models.Location, updatedAt int64) error {
	key, err := memberKey(memberID)
	if err != nil {
		return err
	}
	return s.updateMember(ctx, teamID, key, bson.M{"$set": bson.M{
		key + ".location":    loc,
		key + ".lastUpdated": updatedAt,
	}})
}

func (s *MongoStore) UpdateMemberName(ctx context.Context, teamID, memberID, name string) error {
	key, err := memberKey(memberID)
	if err != nil {
		return err
	}
	return s.updateMember(ctx, teamID, key, bson.M{"$set": bson.M{key + ".name": name}})
}

func (s *MongoStore) DeleteMember(ctx context.Context, teamID, memberID string) error {
	key, err := memberKey(memberID)
	if err != nil {
		return err
	}
	_, err = s.teams.UpdateOne(ctx, bson.M{"_id": teamID}, bson.M{"$unset": bson.M{key: ""}})
	return err
}

func (s *MongoStore) PutWaypoint(ctx context.Context, teamID string, wp models.Waypoint) error {
	key, err := waypointKey(wp.ID)
	if err != nil {
		return err
	}
	return s.updateTeam(ctx, bson.M{"_id": teamID}, bson.M{"$set": bson.M{key: wp}})
}

func (s *MongoStore) DeleteWaypoint(ctx context.Context, teamID, waypointID string) error {
	key, err := waypointKey(waypointID)
	if err != nil {
		return err
	}
	_, err = s.teams.UpdateOne(ctx, bson.M{"_id": teamID}, bson.M{"$unset": bson.M{key: ""}})
	return err
}

func (s *MongoStore) SetMeetup(ctx context.Context, teamID string, point models.MeetupPoint) error {
	return s.updateTeam(ctx, bson.M{"_id": teamID}, bson.M{"$set": bson.M{"meetupPoint": point}})
}

func (s *MongoStore) ClearMeetup(ctx context.Context, teamID string) error {
	return s.updateTeam(ctx, bson.M{"_id": teamID}, bson.M{"$unset": bson.M{"meetupPoint": ""}})
}

func (s *MongoStore) RecentTeams(ctx context.Context, limit int) ([]models.RecentTeam, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"name": 1, "createdAt": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.teams.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	teams := []models.RecentTeam{}
	if err = cursor.All(ctx, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// changeStream is the part of *mongo.ChangeStream that follow reads.
type changeStream interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

type changeEvent struct {
	OperationType string       `bson:"operationType"`
	FullDocument  *models.Team `bson:"fullDocument"`
}

func (s *MongoStore) Watch(ctx context.Context, teamID string, onSnapshot func(*models.Team), onError func(error)) (func(), error) {
	watchCtx, cancel := context.WithCancel(context.Background())

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: teamID}}}},
	}
	stream, err := s.teams.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch team %s: %w", teamID, err)
	}

	sub := newSubscription(onSnapshot)

	// Read after the stream is open so no change falls between the two.
	initial, err := s.GetTeam(ctx, teamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		sub.stop()
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}
	sub.offer(initial)

	go follow(watchCtx, stream, sub, func(ctx context.Context) (*models.Team, error) {
		return s.GetTeam(ctx, teamID)
	}, func(err error) {
		log.Printf("change stream for team %s ended: %v", teamID, err)
		if onError != nil {
			onError(err)
		}
	})

	return func() {
		sub.stop()
		cancel()
	}, nil
}

// follow offers the team of every change event to sub until the stream ends. Events without a
// full document fall back to lookup. onError is called when the stream fails while still wanted.
func follow(ctx context.Context, stream changeStream, sub *subscription, lookup func(context.Context) (*models.Team, error), onError func(error)) {
	defer stream.Close(context.Background())
	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			log.Printf("decode change event: %v", err)
			continue
		}
		switch ev.OperationType {
		case "delete":
			sub.offer(nil)
		default:
			if ev.FullDocument != nil {
				sub.offer(ev.FullDocument)
				continue
			}
			team, err := lookup(ctx)
			if errors.Is(err, ErrNotFound) {
				sub.offer(nil)
			} else if err == nil {
				sub.offer(team)
			}
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil && !sub.stopped.Load() {
		onError(err)
	}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) updateTeam(ctx context.Context, filter, update bson.M) error {
	res, err := s.teams.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// updateMember applies update only while the member exists, so a late write never
// resurrects a member that has already left.
func (s *MongoStore) updateMember(ctx context.Context, teamID, key string, update bson.M) error {
	res, err := s.teams.UpdateOne(ctx, bson.M{"_id": teamID, key: bson.M{"$exists": true}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.teams.CountDocuments(ctx, bson.M{"_id": teamID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrMemberNotFound
}
