package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"dmcore/internal/domain"
)

type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Content        string    `bson:"content"`
	SendingTime    time.Time `bson:"sending_time"`
	Seq            int64     `bson:"seq"`
}

func (d *messageDoc) toDomain() *domain.Message {
	return &domain.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		SendingTime:    d.SendingTime.UTC(),
		Seq:            d.Seq,
	}
}

type MessageRepo struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	counters      *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
		counters:      db.Collection(countersCollection),
	}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: messagesCollection}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message seq: %w", err)
	}
	return counter.Seq, nil
}

// Append inserts the message and then advances last_message_date with $max.
// The two writes are not transactional (standalone servers have no
// transactions); $max keeps a retried or reordered update monotonic.
func (r *MessageRepo) Append(ctx context.Context, m *domain.Message) error {
	var conv conversationDoc
	err := r.conversations.FindOne(ctx, bson.D{{Key: "_id", Value: m.ConversationID}}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	c, err := conv.toDomain()
	if err != nil {
		return err
	}
	if !c.HasParticipant(m.SenderID) {
		return fmt.Errorf("append message: %w: sender is not a participant", domain.ErrForbidden)
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SendingTime.IsZero() {
		m.SendingTime = time.Now()
	}
	// BSON datetimes carry millisecond precision.
	m.SendingTime = m.SendingTime.UTC().Truncate(time.Millisecond)

	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}
	m.Seq = seq

	doc := messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SendingTime:    m.SendingTime,
		Seq:            m.Seq,
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := r.conversations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: m.ConversationID}},
		bson.D{{Key: "$max", Value: bson.D{{Key: "last_message_date", Value: m.SendingTime}}}},
	); err != nil {
		return fmt.Errorf("update last_message_date: %w", err)
	}
	return nil
}

func (r *MessageRepo) Page(ctx context.Context, conversationID string, q domain.PageQuery) ([]*domain.Message, error) {
	filter := bson.D{{Key: "conversation_id", Value: conversationID}}
	ascending := bson.D{{Key: "sending_time", Value: 1}, {Key: "seq", Value: 1}}
	descending := bson.D{{Key: "sending_time", Value: -1}, {Key: "seq", Value: -1}}

	sort, reversed := descending, true
	switch {
	case q.After != nil:
		filter = append(filter, bson.E{Key: "sending_time", Value: bson.D{{Key: "$gt", Value: *q.After}}})
		sort, reversed = ascending, false
	case q.Before != nil:
		filter = append(filter, bson.E{Key: "sending_time", Value: bson.D{{Key: "$lt", Value: *q.Before}}})
	}

	cur, err := r.messages.Find(ctx, filter, options.Find().SetSort(sort).SetLimit(int64(q.Limit)))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]*domain.Message, len(docs))
	for i := range docs {
		msgs[i] = docs[i].toDomain()
	}
	if reversed {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}
