package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements Store on a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
}

// QdrantConfig configures the Qdrant client connection.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrantStore connects to Qdrant with the given configuration.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, vec []float32, payload Payload) error {
	if err := s.EnsureCollection(ctx, collection, len(vec)); err != nil {
		return err
	}

	qp := make(map[string]*qdrant.Value, len(payload))
	for key, value := range payload {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("convert payload field %s: %w", key, err)
		}
		qp[key] = val
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qp,
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildFilter(filter); qf != nil {
		req.Filter = qf
	}

	res, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(res.Result))
	for _, point := range res.Result {
		hits = append(hits, Hit{
			ID:      pointID(point.Id),
			Score:   float64(point.Score),
			Payload: decodePayload(point.Payload),
		})
	}
	return hits, nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete point %s from %s: %w", id, collection, err)
	}
	return nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

func buildFilter(filter *Filter) *qdrant.Filter {
	if filter == nil {
		return nil
	}
	qf := &qdrant.Filter{}
	for field, value := range filter.Equal {
		qf.Must = append(qf.Must, matchCondition(field, value))
	}
	for field, value := range filter.NotEqual {
		qf.MustNot = append(qf.MustNot, matchCondition(field, value))
	}
	if len(qf.Must) == 0 && len(qf.MustNot) == 0 {
		return nil
	}
	return qf
}

func matchCondition(field string, value any) *qdrant.Condition {
	switch v := value.(type) {
	case int64:
		return qdrant.NewMatchInt(field, v)
	case int:
		return qdrant.NewMatchInt(field, int64(v))
	case bool:
		return qdrant.NewMatchBool(field, v)
	default:
		return qdrant.NewMatch(field, fmt.Sprintf("%v", v))
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func decodePayload(raw map[string]*qdrant.Value) Payload {
	if len(raw) == 0 {
		return nil
	}
	out := make(Payload, len(raw))
	for key, value := range raw {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			out[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			out[key] = v.BoolValue
		default:
			out[key] = value.String()
		}
	}
	return out
}
