// Package qdrant stores documents in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cast"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nestauk/discovery-genai/internal/vector"
)

const (
	payloadDocID    = "doc_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
)

// Repository implements vector.Repository using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	metric      vector.Metric
}

var _ vector.Repository = (*Repository)(nil)

// Config locates the collection and fixes its distance metric.
type Config struct {
	Host       string
	Port       int
	Collection string
	Metric     vector.Metric
}

// New dials Qdrant. The connection is lazy; the first call reports an
// unreachable server.
func New(cfg Config) (*Repository, error) {
	if _, err := distanceFor(cfg.Metric); err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := newRepository(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection, cfg.Metric)
	r.conn = conn
	return r, nil
}

func newRepository(points pb.PointsClient, collections pb.CollectionsClient, collection string, metric vector.Metric) *Repository {
	return &Repository{
		points:      points,
		collections: collections,
		collection:  collection,
		metric:      metric,
	}
}

// EnsureCollection creates the collection for vectors of size dim if it does
// not exist yet.
func (r *Repository) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	distance, err := distanceFor(r.metric)
	if err != nil {
		return err
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: distance},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %q: %w", r.collection, err)
	}
	return nil
}

// Ping fails unless the collection exists on a reachable server.
func (r *Repository) Ping(ctx context.Context) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if !exists.GetResult().GetExists() {
		return fmt.Errorf("qdrant: collection %q does not exist", r.collection)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*pb.Value{
			payloadDocID: stringValue(d.ID),
			payloadText:  stringValue(d.Text),
		}
		// Metadata is nested so a column named doc_id or text cannot shadow
		// the document fields.
		if len(d.Metadata) > 0 {
			fields := make(map[string]*pb.Value, len(d.Metadata))
			for k, v := range d.Metadata {
				fields[k] = toValue(v)
			}
			payload[payloadMetadata] = &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(d.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// Prune deletes every point whose document id is not in keep. Called after
// Upsert it leaves the collection holding exactly the current corpus. An
// empty keep clears the collection.
func (r *Repository) Prune(ctx context.Context, keep []string) error {
	filter := &pb.Filter{}
	if len(keep) > 0 {
		ids := make([]*pb.PointId, len(keep))
		for i, id := range keep {
			ids[i] = pb.NewIDUUID(PointID(id))
		}
		filter.MustNot = []*pb.Condition{pb.NewHasID(ids...)}
	}

	wait := true
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         pb.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant prune to %d points: %w", len(keep), err)
	}
	return nil
}

// Search returns the k closest documents. Qdrant scores are turned into
// distances so results compare the same way as the in-memory index.
func (r *Repository) Search(ctx context.Context, vec []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		return nil, vector.ErrInvalidK
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.Result, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		res := vector.Result{
			ID:       pt.GetId().GetUuid(),
			Distance: r.distance(pt.GetScore()),
		}
		for key, v := range pt.GetPayload() {
			switch key {
			case payloadDocID:
				res.ID = v.GetStringValue()
			case payloadText:
				res.Text = v.GetStringValue()
			case payloadMetadata:
				for mk, mv := range v.GetStructValue().GetFields() {
					if res.Metadata == nil {
						res.Metadata = make(map[string]any)
					}
					res.Metadata[mk] = fromValue(mv)
				}
			default:
				if res.Metadata == nil {
					res.Metadata = make(map[string]any)
				}
				res.Metadata[key] = fromValue(v)
			}
		}
		results[i] = res
	}
	return results, nil
}

func (r *Repository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// PointID maps a document id onto the UUID Qdrant requires. The mapping is
// stable, so re-indexing a document replaces its point.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

func distanceFor(m vector.Metric) (pb.Distance, error) {
	switch m {
	case vector.Euclidean:
		return pb.Distance_Euclid, nil
	case vector.Cosine:
		return pb.Distance_Cosine, nil
	case vector.Dot:
		return pb.Distance_Dot, nil
	}
	return pb.Distance_UnknownDistance, fmt.Errorf("%w: %q", vector.ErrUnknownMetric, string(m))
}

func (r *Repository) distance(score float32) float64 {
	switch r.metric {
	case vector.Cosine:
		return 1 - float64(score)
	case vector.Dot:
		return -float64(score)
	}
	return float64(score)
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func toValue(v any) *pb.Value {
	switch x := v.(type) {
	case string:
		return stringValue(x)
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: cast.ToInt64(x)}}
	case float32, float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: cast.ToFloat64(x)}}
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	}
	return stringValue(cast.ToString(v))
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	}
	return nil
}
