package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Hyung-98/ChatbotSocket-sub000/tools/ids"
)

// MongoConfig mirrors the connection options we actually use.
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize int
}

// ConnectMongo dials and pings; callers own the returned database handle.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		return nil, errors.Wrap(err, "mongo ping")
	}
	return cli.Database(cfg.Database), nil
}

// MongoStore implements ChatStore on rooms/messages collections.
type MongoStore struct {
	rooms    *mongo.Collection
	messages *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
	}
}

// EnsureIndexes creates the room_id+created_at+_id index message ordering
// relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	return errors.Wrap(err, "create message index")
}

func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var r Room
	err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get room")
	}
	return &r, nil
}

func (s *MongoStore) CreateRoom(ctx context.Context, roomID, name string) (*Room, error) {
	r := &Room{ID: roomID, Name: name, CreatedAt: time.Now().UTC()}
	// upsert with SetOnInsert so concurrent joins converge on one document
	_, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$setOnInsert": bson.M{"name": r.Name, "created_at": r.CreatedAt}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create room")
	}
	return s.GetRoom(ctx, roomID)
}

func (s *MongoStore) AppendMessage(ctx context.Context, m *Message) (*Message, error) {
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return nil, errors.Wrap(err, "append message")
	}
	return m, nil
}

func (s *MongoStore) RecentMessages(ctx context.Context, roomID string, n int) ([]Message, error) {
	if n <= 0 {
		n = 20
	}
	// _id breaks ties between same-millisecond messages; the snowflake ids
	// are monotonic per node, so this keeps append order stable.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(n))
	cur, err := s.messages.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	var out []Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	// newest-first from the index; hand back ascending
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MongoStore) ListRooms(ctx context.Context) ([]Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find rooms")
	}
	var out []Room
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode rooms")
	}
	return out, nil
}

// MongoUserStore implements UserStore on the users collection maintained by
// the external REST plane.
type MongoUserStore struct {
	users *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{users: db.Collection("users")}
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return &u, nil
}
