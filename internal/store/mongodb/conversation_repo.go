package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"dmcore/internal/domain"
)

type conversationDoc struct {
	ID              string     `bson:"_id"`
	Participants    []string   `bson:"participants"`
	PairKey         string     `bson:"pair_key"`
	CreatedAt       time.Time  `bson:"created_at"`
	LastMessageDate *time.Time `bson:"last_message_date,omitempty"`
}

func (d *conversationDoc) toDomain() (*domain.Conversation, error) {
	if len(d.Participants) != 2 {
		return nil, fmt.Errorf("conversation %s has %d participants", d.ID, len(d.Participants))
	}
	c := &domain.Conversation{
		ID:           d.ID,
		Participants: [2]string{d.Participants[0], d.Participants[1]},
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.LastMessageDate != nil {
		t := d.LastMessageDate.UTC()
		c.LastMessageDate = &t
	}
	return c, nil
}

type aggregatedDoc struct {
	conversationDoc `bson:",inline"`
	Messages        []messageDoc `bson:"messages"`
}

type ConversationRepo struct {
	conversations *mongo.Collection
}

func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{conversations: db.Collection(conversationsCollection)}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) findOne(ctx context.Context, filter bson.D) (*domain.Conversation, error) {
	var doc conversationDoc
	err := r.conversations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, err
}

func (r *ConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	c, err := r.findOne(ctx, bson.D{{Key: "pair_key", Value: domain.PairKey(userA, userB)}})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find conversation by participants: %w", err)
	}
	return c, err
}

// Create inserts the conversation; the unique pair_key index turns a lost
// race into a duplicate key error, reported as ErrConflict.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	low, high := domain.CanonicalPair(c.Participants[0], c.Participants[1])
	if low == high {
		return fmt.Errorf("create conversation: %w: participants must be distinct", domain.ErrBadRequest)
	}
	c.Participants = [2]string{low, high}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.CreatedAt = c.CreatedAt.Truncate(time.Millisecond)

	doc := conversationDoc{
		ID:              c.ID,
		Participants:    []string{low, high},
		PairKey:         domain.PairKey(low, high),
		CreatedAt:       c.CreatedAt,
		LastMessageDate: c.LastMessageDate,
	}
	if _, err := r.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) ListCounterparts(ctx context.Context, userID string) ([]string, error) {
	cur, err := r.conversations.Find(ctx,
		bson.D{{Key: "participants", Value: userID}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "participants", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list counterparts: %w", err)
	}
	var docs []struct {
		Participants []string `bson:"participants"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode counterparts: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		for _, p := range d.Participants {
			if p != userID {
				ids = append(ids, p)
			}
		}
	}
	return ids, nil
}

// ListWithMessages runs a single $match + $lookup aggregation.
func (r *ConversationRepo) ListWithMessages(
	ctx context.Context,
	userID string,
	after *time.Time,
	perConversation int,
) ([]*domain.ConversationWithMessages, error) {
	match := bson.D{{Key: "participants", Value: userID}}
	if after != nil {
		match = append(match, bson.E{Key: "last_message_date", Value: bson.D{{Key: "$gt", Value: *after}}})
	}

	lookup := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
			{Key: "$eq", Value: bson.A{"$conversation_id", "$$cid"}},
		}}}}},
	}
	if perConversation > 0 {
		lookup = append(lookup,
			bson.D{{Key: "$sort", Value: bson.D{{Key: "sending_time", Value: -1}, {Key: "seq", Value: -1}}}},
			bson.D{{Key: "$limit", Value: perConversation}},
		)
	}
	lookup = append(lookup, bson.D{{Key: "$sort", Value: bson.D{{Key: "sending_time", Value: 1}, {Key: "seq", Value: 1}}}})

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: messagesCollection},
			{Key: "let", Value: bson.D{{Key: "cid", Value: "$_id"}}},
			{Key: "pipeline", Value: lookup},
			{Key: "as", Value: "messages"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_message_date", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cur, err := r.conversations.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}
	var docs []aggregatedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	res := make([]*domain.ConversationWithMessages, 0, len(docs))
	for i := range docs {
		c, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		item := &domain.ConversationWithMessages{Conversation: c, Messages: make([]*domain.Message, 0, len(docs[i].Messages))}
		for j := range docs[i].Messages {
			item.Messages = append(item.Messages, docs[i].Messages[j].toDomain())
		}
		res = append(res, item)
	}
	return res, nil
}
