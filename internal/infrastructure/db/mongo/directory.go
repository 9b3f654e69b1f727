package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

const (
	collectionUsers    = "users"
	collectionGroups   = "groups"
	collectionRequests = "requests"
)

// Directory implements ports.Directory on three collections. Request IDs are
// UUIDv7 strings, so sorting by (created_at, _id) yields creation order.
type Directory struct {
	client       *mongo.Client
	users        *mongo.Collection
	groups       *mongo.Collection
	requests     *mongo.Collection
	transactions bool
}

// NewDirectory builds the store. With transactions enabled (replica sets
// only) each Persist commits atomically.
func NewDirectory(db *mongo.Database, transactions bool) *Directory {
	return &Directory{
		client:       db.Client(),
		users:        db.Collection(collectionUsers),
		groups:       db.Collection(collectionGroups),
		requests:     db.Collection(collectionRequests),
		transactions: transactions,
	}
}

func (d *Directory) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	if err := d.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (d *Directory) FindGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var g domain.Group
	if err := d.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &g, nil
}

func (d *Directory) FindRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var r domain.Request
	if err := d.requests.FindOne(ctx, bson.M{"_id": requestID}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return &r, nil
}

// RequestsMatching translates the filter into a query sorted by creation.
func (d *Directory) RequestsMatching(ctx context.Context, filter ports.RequestFilter) ([]*domain.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := d.requests.Find(ctx, requestQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find requests: %w", err)
	}
	out := []*domain.Request{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return out, nil
}

func requestQuery(f ports.RequestFilter) bson.M {
	q := bson.M{}
	if f.UserID != "" {
		q["user_id"] = f.UserID
	}
	if f.CourseID != "" {
		q["course_id"] = f.CourseID
	}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	switch len(f.GroupIDs) {
	case 0:
	case 1:
		q["group_id"] = f.GroupIDs[0]
	default:
		q["group_id"] = bson.M{"$in": f.GroupIDs}
	}
	return q
}

func (d *Directory) GroupsWithMember(ctx context.Context, userID string) ([]*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := d.groups.Find(ctx, bson.M{"members": userID})
	if err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	var out []*domain.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return out, nil
}

// Persist writes created requests, replaced requests and appended members.
// Member appends use $addToSet semantics guarded by the filter so a retried
// write cannot duplicate a member.
func (d *Directory) Persist(ctx context.Context, changes ports.Changeset) error {
	if changes.Empty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if !d.transactions {
		return d.write(ctx, changes)
	}

	sess, err := d.client.StartSession()
	if err != nil {
		return fmt.Errorf("persist: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, d.write(sc, changes)
	})
	return err
}

func (d *Directory) write(ctx context.Context, changes ports.Changeset) error {
	for _, g := range changes.Groups {
		for _, member := range g.Members {
			_, err := d.groups.UpdateOne(ctx,
				bson.M{"_id": g.ID, "members": bson.M{"$ne": member}},
				bson.M{"$push": bson.M{"members": member}},
			)
			if err != nil {
				return fmt.Errorf("persist group %s: %w", g.ID, err)
			}
		}
	}

	if len(changes.Updated) > 0 {
		models := make([]mongo.WriteModel, 0, len(changes.Updated))
		for _, r := range changes.Updated {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": r.ID}).
				SetReplacement(r))
		}
		if _, err := d.requests.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("persist requests: %w", err)
		}
	}

	if len(changes.Created) > 0 {
		docs := make([]interface{}, 0, len(changes.Created))
		for _, r := range changes.Created {
			docs = append(docs, r)
		}
		if _, err := d.requests.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("persist new requests: %w", err)
		}
	}
	return nil
}

// Ping reports whether the backing database is reachable.
func (d *Directory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the lifecycle queries rely on.
func (d *Directory) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := d.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "group_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "course_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("request indexes: %w", err)
	}

	_, err = d.groups.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "members", Value: 1}}})
	if err != nil {
		return fmt.Errorf("group indexes: %w", err)
	}

	_, err = d.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	return nil
}
