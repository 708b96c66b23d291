package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"dmcore/internal/domain"
)

type FriendshipRepo struct {
	friendships *mongo.Collection
}

func NewFriendshipRepo(db *mongo.Database) *FriendshipRepo {
	return &FriendshipRepo{friendships: db.Collection(friendshipsCollection)}
}

var _ domain.FriendshipRepository = (*FriendshipRepo)(nil)

func (r *FriendshipRepo) Add(ctx context.Context, f *domain.Friendship) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.friendships.UpdateOne(ctx,
		bson.D{{Key: "user_id", Value: f.UserID}, {Key: "friend_id", Value: f.FriendID}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: f.CreatedAt}}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert friendship: %w", err)
	}
	return nil
}

func (r *FriendshipRepo) Exists(ctx context.Context, userA, userB string) (bool, error) {
	n, err := r.friendships.CountDocuments(ctx,
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "user_id", Value: userA}, {Key: "friend_id", Value: userB}},
			bson.D{{Key: "user_id", Value: userB}, {Key: "friend_id", Value: userA}},
		}}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return n > 0, nil
}
