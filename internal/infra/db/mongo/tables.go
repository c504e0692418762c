package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"livelocal/internal/platform"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// TableStore implements the platform table contract on MongoDB. Rows keep
// their "id" field; timestamps are fixed-width RFC 3339 strings so string
// sort order equals time order.
type TableStore struct {
	db  *mongo.Database
	bus feed.Publisher
	now func() time.Time
}

func NewTableStore(client *Client, bus feed.Publisher) *TableStore {
	return &TableStore{
		db:  client.DB,
		bus: bus,
		now: time.Now,
	}
}

// EnsureIndexes creates the unique indexes behind the schema unique keys.
// Unlike the memory backend's pre-insert scan, mongo enforces these keys
// even across racing writers.
func (s *TableStore) EnsureIndexes(ctx context.Context) error {
	for table, keys := range schema.UniqueKeys {
		for _, key := range keys {
			doc := bson.D{}
			for _, col := range key {
				doc = append(doc, bson.E{Key: col, Value: 1})
			}
			_, err := s.db.Collection(table).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    doc,
				Options: options.Index().SetUnique(true),
			})
			if err != nil {
				return fmt.Errorf("mongo: index %s%v: %w", table, key, err)
			}
		}
	}
	return nil
}

func (s *TableStore) Select(ctx context.Context, params remote.SelectParams) ([]remote.Row, error) {
	findOpts := options.Find().SetProjection(bson.M{"_id": 0})
	if params.OrderBy != "" {
		direction := 1
		if params.Desc {
			direction = -1
		}
		findOpts.SetSort(bson.D{{Key: params.OrderBy, Value: direction}})
	}
	if params.Limit > 0 {
		findOpts.SetLimit(int64(params.Limit))
	}
	cursor, err := s.db.Collection(params.Table).Find(ctx, filterDocument(params.Filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: select %s: %w", params.Table, err)
	}
	defer cursor.Close(ctx)

	rows := make([]remote.Row, 0)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode %s row: %w", params.Table, err)
		}
		rows = append(rows, remote.Row(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: select %s: %w", params.Table, err)
	}
	return rows, nil
}

func (s *TableStore) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	stored := make(remote.Row, len(row)+3)
	for k, v := range row {
		stored[k] = v
	}
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.NewString()
	}
	now := remote.Timestamp(s.now())
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	if _, ok := stored["updated_at"]; !ok {
		stored["updated_at"] = now
	}

	if _, err := s.db.Collection(table).InsertOne(ctx, bson.M(stored)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", table, remote.ErrDuplicate)
		}
		return nil, fmt.Errorf("mongo: insert %s: %w", table, err)
	}
	delete(stored, "_id")
	s.publish(remote.Event{Type: remote.EventInsert, Table: table, Row: stored})
	return stored, nil
}

func (s *TableStore) Update(ctx context.Context, table string, filter remote.Filter, patch remote.Row) (int, error) {
	set := bson.M{}
	for key, value := range patch {
		if key == "id" || key == "created_at" {
			continue
		}
		set[key] = value
	}
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = remote.Timestamp(s.now())
	}

	ids, err := s.matchingIDs(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := s.db.Collection(table).UpdateMany(ctx, bson.M{"id": bson.M{"$in": ids}}, bson.M{"$set": set}); err != nil {
		return 0, fmt.Errorf("mongo: update %s: %w", table, err)
	}

	updated, err := s.Select(ctx, remote.SelectParams{Table: table, Filter: remote.In("id", ids...)})
	if err != nil {
		return len(ids), nil
	}
	for _, row := range updated {
		s.publish(remote.Event{Type: remote.EventUpdate, Table: table, Row: row})
	}
	return len(ids), nil
}

func (s *TableStore) Delete(ctx context.Context, table string, filter remote.Filter) (int, error) {
	removed, err := s.Select(ctx, remote.SelectParams{Table: table, Filter: filter})
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}
	ids := rowIDs(removed)
	if _, err := s.db.Collection(table).DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("mongo: delete %s: %w", table, err)
	}
	for _, row := range removed {
		s.publish(remote.Event{Type: remote.EventDelete, Table: table, Row: row})
	}
	return len(removed), nil
}

func (s *TableStore) matchingIDs(ctx context.Context, table string, filter remote.Filter) ([]any, error) {
	rows, err := s.Select(ctx, remote.SelectParams{Table: table, Filter: filter})
	if err != nil {
		return nil, err
	}
	return rowIDs(rows), nil
}

func rowIDs(rows []remote.Row) []any {
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *TableStore) publish(event remote.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

// filterDocument translates a remote filter into a query document.
func filterDocument(f remote.Filter) bson.M {
	clauses := make([]bson.M, 0, len(f.Conds)+1)
	for _, cond := range f.Conds {
		clauses = append(clauses, condDocument(cond))
	}
	if len(f.Or) > 0 {
		branches := make([]bson.M, 0, len(f.Or))
		for _, branch := range f.Or {
			branches = append(branches, filterDocument(branch))
		}
		clauses = append(clauses, bson.M{"$or": branches})
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		return bson.M{"$and": clauses}
	}
}

var _ platform.TableStore = (*TableStore)(nil)

func condDocument(c remote.Cond) bson.M {
	switch c.Op {
	case remote.OpEq:
		return bson.M{c.Field: c.Value}
	case remote.OpNeq:
		return bson.M{c.Field: bson.M{"$ne": c.Value}}
	case remote.OpIn:
		return bson.M{c.Field: bson.M{"$in": c.Values}}
	case remote.OpIs:
		return bson.M{"$or": []bson.M{
			{c.Field: nil},
			{c.Field: bson.M{"$exists": false}},
		}}
	case remote.OpIsNot:
		return bson.M{c.Field: bson.M{"$exists": true, "$ne": nil}}
	default:
		// Unknown operators match nothing rather than everything.
		return bson.M{"_id": bson.M{"$exists": false}}
	}
}
