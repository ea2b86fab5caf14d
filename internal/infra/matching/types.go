package matching

import "encoding/json"

// indexResource はインデックスリソースのワイヤ表現
type indexResource struct {
	Name              string         `json:"name,omitempty"`
	DisplayName       string         `json:"displayName"`
	Metadata          *indexMetadata `json:"metadata,omitempty"`
	IndexUpdateMethod string         `json:"indexUpdateMethod,omitempty"`
}

type indexMetadata struct {
	Config           *indexConfig `json:"config,omitempty"`
	ContentsDeltaURI string       `json:"contentsDeltaUri,omitempty"`
}

type indexConfig struct {
	Dimensions          int    `json:"dimensions"`
	DistanceMeasureType string `json:"distanceMeasureType"`
	ShardSize           string `json:"shardSize"`
}

type indexListResponse struct {
	Indexes []indexResource `json:"indexes"`
}

// endpointResource はエンドポイントリソースのワイヤ表現
type endpointResource struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName"`
}

type endpointListResponse struct {
	IndexEndpoints []endpointResource `json:"indexEndpoints"`
}

// deployIndexRequest はインデックス配備リクエスト
type deployIndexRequest struct {
	DeployedIndex deployedIndex `json:"deployedIndex"`
}

type deployedIndex struct {
	ID                 string              `json:"id"`
	Index              string              `json:"index"`
	DisplayName        string              `json:"displayName"`
	DedicatedResources *dedicatedResources `json:"dedicatedResources,omitempty"`
}

type dedicatedResources struct {
	MachineSpec     machineSpec `json:"machineSpec"`
	MinReplicaCount int         `json:"minReplicaCount"`
	MaxReplicaCount int         `json:"maxReplicaCount"`
}

type machineSpec struct {
	MachineType string `json:"machineType"`
}

// updateEmbeddingsRequest はバルク取り込みリクエスト
type updateEmbeddingsRequest struct {
	ContentsDeltaURI string `json:"contentsDeltaUri"`
}

// findNeighborsRequest は近傍検索リクエスト
type findNeighborsRequest struct {
	DeployedIndexID string          `json:"deployedIndexId"`
	Queries         []neighborQuery `json:"queries"`
}

type neighborQuery struct {
	Datapoint     datapoint `json:"datapoint"`
	NeighborCount int       `json:"neighborCount"`
}

type datapoint struct {
	DatapointID   string    `json:"datapointId,omitempty"`
	FeatureVector []float32 `json:"featureVector,omitempty"`
}

type findNeighborsResponse struct {
	NearestNeighbors []nearestNeighbors `json:"nearestNeighbors"`
}

type nearestNeighbors struct {
	Neighbors []wireNeighbor `json:"neighbors"`
}

type wireNeighbor struct {
	Datapoint datapoint `json:"datapoint"`
	Distance  float64   `json:"distance"`
}

// operation は長時間実行オペレーションのワイヤ表現
type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *operationError `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
