package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"livelocal/internal/remote"
)

func TestFilterDocumentTranslation(t *testing.T) {
	assert.Equal(t, bson.M{}, filterDocument(remote.Filter{}), "zero filter matches everything")

	assert.Equal(t,
		bson.M{"user_id": "u1"},
		filterDocument(remote.Eq("user_id", "u1")))

	assert.Equal(t,
		bson.M{"sender_id": bson.M{"$ne": "u1"}},
		filterDocument(remote.Neq("sender_id", "u1")))

	assert.Equal(t,
		bson.M{"experience_id": bson.M{"$in": []any{"e1", "e2"}}},
		filterDocument(remote.In("experience_id", "e1", "e2")))
}

func TestFilterDocumentNullChecks(t *testing.T) {
	assert.Equal(t,
		bson.M{"$or": []bson.M{
			{"read_at": nil},
			{"read_at": bson.M{"$exists": false}},
		}},
		filterDocument(remote.IsNull("read_at")))

	assert.Equal(t,
		bson.M{"read_at": bson.M{"$ne": nil, "$exists": true}},
		filterDocument(remote.NotNull("read_at")))
}

func TestFilterDocumentComposition(t *testing.T) {
	both := remote.And(remote.Eq("conversation_id", "c1"), remote.Neq("sender_id", "u1"))
	assert.Equal(t,
		bson.M{"$and": []bson.M{
			{"conversation_id": "c1"},
			{"sender_id": bson.M{"$ne": "u1"}},
		}},
		filterDocument(both))

	either := remote.Or(remote.Eq("participant_a", "u1"), remote.Eq("participant_b", "u1"))
	assert.Equal(t,
		bson.M{"$or": []bson.M{
			{"participant_a": "u1"},
			{"participant_b": "u1"},
		}},
		filterDocument(either))
}
