package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
	"github.com/timmy/petmatch/internal/matching"
)

const (
	payloadStatus   = "status"
	payloadLocation = "location"
)

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud key; enables TLS
	UseTLS          bool
	VectorDimension int
	Metric          matching.Metric
}

// IndexHit is a point returned by a vector search with its distance to the query.
type IndexHit struct {
	ID             string
	VectorDistance float64
}

// QdrantIndex stores one point per animal: its embedding plus a status and
// geo payload, so a search can filter by status and GeoBox before ranking.
type QdrantIndex struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	collection    string
	dimension     int
	metric        matching.Metric
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// NewQdrantIndex connects to Qdrant. Local instances use plaintext gRPC;
// an API key or UseTLS switches to TLS 1.3.
func NewQdrantIndex(cfg *QdrantConnectionConfig) (*QdrantIndex, error) {
	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantIndex{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		collection:    cfg.Collection,
		dimension:     cfg.VectorDimension,
		metric:        cfg.Metric,
	}, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

func (q *QdrantIndex) distance() pb.Distance {
	if q.metric == matching.MetricCosine {
		return pb.Distance_Cosine
	}
	return pb.Distance_Euclid
}

// EnsureCollection creates the collection and its payload indexes when missing.
// An existing collection with a different vector size is an error.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant: vector dimension must be configured")
	}

	info, err := q.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(q.dimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", q.collection, size, q.dimension)
		}
		return nil
	}

	_, err = q.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dimension),
					Distance: q.distance(),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for field, kind := range map[string]pb.FieldType{
		payloadStatus:   pb.FieldType_FieldTypeKeyword,
		payloadLocation: pb.FieldType_FieldTypeGeo,
	} {
		_, err := q.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      kind.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil || params.GetSize() == 0 {
		return 0, false
	}
	return params.GetSize(), true
}

func pointID(id string) (*pb.PointId, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid point ID: %w", err)
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}}, nil
}

// Upsert writes the point for animal.
func (q *QdrantIndex) Upsert(ctx context.Context, animal *domain.Animal) error {
	id, err := pointID(animal.ID)
	if err != nil {
		return err
	}

	_, err = q.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points: []*pb.PointStruct{{
			Id: id,
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: animal.Embedding.Slice()}},
			},
			Payload: animalPayload(animal),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func animalPayload(animal *domain.Animal) map[string]*pb.Value {
	return map[string]*pb.Value{
		payloadStatus: {Kind: &pb.Value_StringValue{StringValue: string(animal.Status)}},
		payloadLocation: {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: map[string]*pb.Value{
			"lat": {Kind: &pb.Value_DoubleValue{DoubleValue: animal.Latitude}},
			"lon": {Kind: &pb.Value_DoubleValue{DoubleValue: animal.Longitude}},
		}}}},
	}
}

// Search returns up to limit points with status inside box, nearest first.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, status domain.Status, box geo.Box, limit int) ([]IndexHit, error) {
	resp, err := q.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		Filter:         matchFilter(status, box),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]IndexHit, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		hits = append(hits, IndexHit{
			ID:             scored.GetId().GetUuid(),
			VectorDistance: scoreToDistance(q.metric, scored.GetScore()),
		})
	}
	return hits, nil
}

// scoreToDistance converts a Qdrant score into the distance used by the
// similarity term. Cosine scores are similarities; Euclid scores are distances.
func scoreToDistance(metric matching.Metric, score float32) float64 {
	if metric == matching.MetricCosine {
		return 1 - float64(score)
	}
	return float64(score)
}

func matchFilter(status domain.Status, box geo.Box) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   payloadStatus,
						Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: string(status)}},
					},
				},
			},
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: payloadLocation,
						GeoBoundingBox: &pb.GeoBoundingBox{
							TopLeft:     &pb.GeoPoint{Lat: box.MaxLat, Lon: box.MinLon},
							BottomRight: &pb.GeoPoint{Lat: box.MinLat, Lon: box.MaxLon},
						},
					},
				},
			},
		},
	}
}

// Delete removes the point for id.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	pid, err := pointID(id)
	if err != nil {
		return err
	}

	_, err = q.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pid}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}
