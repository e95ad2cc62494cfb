package powerbi

import (
	"encoding/json"
	"fmt"
)

// Refresh statuses reported by the refresh history endpoint.
// A refresh that is still running reports Unknown.
const (
	RefreshUnknown   = "Unknown"
	RefreshCompleted = "Completed"
	RefreshFailed    = "Failed"
	RefreshCancelled = "Cancelled"
	RefreshDisabled  = "Disabled"
)

// Group is a Power BI workspace.
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsReadOnly   bool   `json:"isReadOnly,omitempty"`
	IsOnCapacity bool   `json:"isOnDedicatedCapacity,omitempty"`
}

// Dataset is a semantic model inside a workspace.
// ID is empty for a dataset that was requested by name but is not in the workspace.
type Dataset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ConfiguredBy  string `json:"configuredBy,omitempty"`
	IsRefreshable bool   `json:"isRefreshable,omitempty"`
}

// Refresh is one entry of a dataset's refresh history, most recent first.
// EndTime is empty while the refresh is in progress.
type Refresh struct {
	RequestID            string `json:"requestId,omitempty"`
	RefreshType          string `json:"refreshType,omitempty"`
	Status               string `json:"status"`
	StartTime            string `json:"startTime"`
	EndTime              string `json:"endTime,omitempty"`
	ServiceExceptionJSON string `json:"serviceExceptionJson,omitempty"`
}

type valueList[T any] struct {
	Value []T `json:"value"`
}

// ParseRefreshHistory decodes the body returned by RefreshHistory.
func ParseRefreshHistory(body []byte) ([]Refresh, error) {
	var list valueList[Refresh]
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode refresh history: %w", err)
	}
	return list.Value, nil
}
