package matching

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/retriever/internal/core/vecindex"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient("proj", "region",
		WithBaseURL(server.URL),
		WithToken("test-token"),
		WithClientLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPollInterval(time.Millisecond),
		WithPollTimeout(3*time.Second),
	)
}

func TestClient_FindIndex(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/proj/locations/region/indexes", r.URL.Path)
		assert.Equal(t, `display_name="index_model"`, r.URL.Query().Get("filter"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		// フィルタを無視するサーバでも表示名完全一致のみ採用する
		json.NewEncoder(w).Encode(indexListResponse{Indexes: []indexResource{
			{Name: "projects/proj/locations/region/indexes/9", DisplayName: "index_other"},
			{Name: "projects/proj/locations/region/indexes/1", DisplayName: "index_model"},
		}})
	})

	client := newTestClient(t, handler)
	handle, err := client.FindIndex(context.Background(), "index_model")
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, "projects/proj/locations/region/indexes/1", handle.ResourceName)
	assert.Equal(t, "index_model", handle.DisplayName)
}

func TestClient_FindIndexAbsent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(indexListResponse{})
	})

	client := newTestClient(t, handler)
	handle, err := client.FindIndex(context.Background(), "index_model")
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestClient_CreateIndexPollsOperation(t *testing.T) {
	var polls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects/proj/locations/region/indexes":
			require.Equal(t, http.MethodPost, r.Method)

			var req indexResource
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "index_model", req.DisplayName)
			assert.Equal(t, 768, req.Metadata.Config.Dimensions)
			assert.Equal(t, "DOT_PRODUCT_DISTANCE", req.Metadata.Config.DistanceMeasureType)
			assert.Equal(t, "SHARD_SIZE_SMALL", req.Metadata.Config.ShardSize)
			assert.Equal(t, "STREAM_UPDATE", req.IndexUpdateMethod)

			json.NewEncoder(w).Encode(operation{Name: "projects/proj/locations/region/operations/op-create"})

		case "/projects/proj/locations/region/operations/op-create":
			// 2回目のポーリングで完了させる
			if polls.Add(1) < 2 {
				json.NewEncoder(w).Encode(operation{Name: "projects/proj/locations/region/operations/op-create"})
				return
			}
			json.NewEncoder(w).Encode(operation{
				Name:     "projects/proj/locations/region/operations/op-create",
				Done:     true,
				Response: json.RawMessage(`{"name":"projects/proj/locations/region/indexes/1"}`),
			})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	client := newTestClient(t, handler)
	handle, err := client.CreateIndex(context.Background(), vecindex.IndexSpec{
		DisplayName:  "index_model",
		Dimension:    768,
		Metric:       vecindex.MetricDotProduct,
		ShardSize:    vecindex.ShardSizeSmall,
		UpdateMethod: vecindex.UpdateMethodStream,
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/proj/locations/region/indexes/1", handle.ResourceName)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestClient_CreateIndexOperationError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(operation{
			Name:  "projects/proj/locations/region/operations/op-create",
			Done:  true,
			Error: &operationError{Code: 8, Message: "resource exhausted"},
		})
	})

	client := newTestClient(t, handler)
	_, err := client.CreateIndex(context.Background(), vecindex.IndexSpec{DisplayName: "index_model"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource exhausted")
}

func TestClient_UpdateEmbeddings(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/proj/locations/region/indexes/1:updateEmbeddings", r.URL.Path)

		var req updateEmbeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gs://bucket", req.ContentsDeltaURI)

		json.NewEncoder(w).Encode(operation{Name: "op", Done: true})
	})

	client := newTestClient(t, handler)
	index := &vecindex.IndexHandle{
		ResourceName: "projects/proj/locations/region/indexes/1",
		DisplayName:  "index_model",
	}
	require.NoError(t, client.UpdateEmbeddings(context.Background(), index, "gs://bucket"))
}

func TestClient_DeployIndex(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects/proj/locations/region/indexEndpoints":
			json.NewEncoder(w).Encode(operation{
				Name:     "op-endpoint",
				Done:     true,
				Response: json.RawMessage(`{"name":"projects/proj/locations/region/indexEndpoints/1"}`),
			})

		case "/projects/proj/locations/region/indexEndpoints/1:deployIndex":
			var req deployIndexRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "index_model", req.DeployedIndex.ID)
			assert.Equal(t, "projects/proj/locations/region/indexes/1", req.DeployedIndex.Index)
			assert.Equal(t, "e2-standard-16", req.DeployedIndex.DedicatedResources.MachineSpec.MachineType)
			assert.Equal(t, 1, req.DeployedIndex.DedicatedResources.MinReplicaCount)
			assert.Equal(t, 1, req.DeployedIndex.DedicatedResources.MaxReplicaCount)

			json.NewEncoder(w).Encode(operation{Name: "op-deploy", Done: true})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	client := newTestClient(t, handler)
	index := &vecindex.IndexHandle{
		ResourceName: "projects/proj/locations/region/indexes/1",
		DisplayName:  "index_model",
	}
	handle, err := client.DeployIndex(context.Background(), index, "endpoint_model", vecindex.DeploySpec{
		DeployedIndexID: "index_model",
		MachineType:     "e2-standard-16",
		MinReplicaCount: 1,
		MaxReplicaCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/proj/locations/region/indexEndpoints/1", handle.ResourceName)
	assert.Equal(t, "endpoint_model", handle.DisplayName)
}

func TestClient_Match(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/proj/locations/region/indexEndpoints/1:findNeighbors", r.URL.Path)

		var req findNeighborsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "index_model", req.DeployedIndexID)
		require.Len(t, req.Queries, 1)
		assert.Equal(t, 2, req.Queries[0].NeighborCount)

		json.NewEncoder(w).Encode(findNeighborsResponse{NearestNeighbors: []nearestNeighbors{
			{Neighbors: []wireNeighbor{
				{Datapoint: datapoint{DatapointID: "3"}, Distance: 0.9},
				{Datapoint: datapoint{DatapointID: "7"}, Distance: 0.5},
			}},
		}})
	})

	client := newTestClient(t, handler)
	endpoint := &vecindex.EndpointHandle{
		ResourceName: "projects/proj/locations/region/indexEndpoints/1",
		DisplayName:  "endpoint_model",
	}
	results, err := client.Match(context.Background(), endpoint, "index_model", [][]float32{{0.1, 0.2}}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, vecindex.Neighbor{ID: "3", Distance: 0.9}, results[0][0])
	assert.Equal(t, vecindex.Neighbor{ID: "7", Distance: 0.5}, results[0][1])
}

func TestClient_ErrorStatusIncludesBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"message":"permission denied"}}`)
	})

	client := newTestClient(t, handler)
	_, err := client.FindIndex(context.Background(), "index_model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "permission denied")
}
