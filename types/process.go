package types

import (
	"fmt"
	"time"
)

type ProcessRole string

const (
	PushJobExtract      ProcessRole = "PUSH_JOB_EXTRACT"
	PushJobTransfer     ProcessRole = "PUSH_JOB_TRANSFER"
	PullJobTransfer     ProcessRole = "PULL_JOB_TRANSFER"
	PullJobLoad         ProcessRole = "PULL_JOB_LOAD"
	PushHandlerTransfer ProcessRole = "PUSH_HANDLER_TRANSFER"
	PushHandlerLoad     ProcessRole = "PUSH_HANDLER_LOAD"
	PullHandlerTransfer ProcessRole = "PULL_HANDLER_TRANSFER"
	PullHandlerExtract  ProcessRole = "PULL_HANDLER_EXTRACT"
	RouterJob           ProcessRole = "ROUTER_JOB"
	RouterReader        ProcessRole = "ROUTER_READER"
	GapDetect           ProcessRole = "GAP_DETECT"
	PurgeOutgoing       ProcessRole = "PURGE_OUTGOING"
	PurgeIncoming       ProcessRole = "PURGE_INCOMING"
	InitialLoadExtract  ProcessRole = "INITIAL_LOAD_EXTRACT"
	FileSyncPullJob     ProcessRole = "FILE_SYNC_PULL_JOB"
	FileSyncPushJob     ProcessRole = "FILE_SYNC_PUSH_JOB"
	Manual              ProcessRole = "MANUAL"
)

var roleDescriptions = map[ProcessRole]string{
	PushJobExtract:      "Database Push Extract",
	PushJobTransfer:     "Database Push Send",
	PullJobTransfer:     "Database Pull Receive",
	PullJobLoad:         "Database Pull Load",
	PushHandlerTransfer: "Service Database Push Receive",
	PushHandlerLoad:     "Service Database Push Load",
	PullHandlerTransfer: "Service Database Pull Send",
	PullHandlerExtract:  "Service Database Pull Extract",
	RouterJob:           "Routing",
	RouterReader:        "Routing Reader",
	GapDetect:           "Gap Detection",
	PurgeOutgoing:       "Purge Outgoing",
	PurgeIncoming:       "Purge Incoming",
	InitialLoadExtract:  "Initial Load Extract",
	FileSyncPullJob:     "File Sync Pull",
	FileSyncPushJob:     "File Sync Push",
	Manual:              "Manual",
}

func (r ProcessRole) Description() string {
	if d, exists := roleDescriptions[r]; exists {
		return d
	}
	return string(r)
}

// ProcessKey identifies one tracked activity. It is comparable and
// safe to use as a map key.
type ProcessKey struct {
	SourceNodeID string      `json:"source_node_id"`
	TargetNodeID string      `json:"target_node_id"`
	Role         ProcessRole `json:"role"`
	// ChannelID is only set when a worker runs per channel.
	ChannelID string `json:"channel_id,omitempty"`
}

func NewProcessKey(sourceNodeID, targetNodeID string, role ProcessRole) ProcessKey {
	return ProcessKey{SourceNodeID: sourceNodeID, TargetNodeID: targetNodeID, Role: role}
}

func NewChannelProcessKey(sourceNodeID, targetNodeID string, role ProcessRole, channelID string) ProcessKey {
	return ProcessKey{SourceNodeID: sourceNodeID, TargetNodeID: targetNodeID, Role: role, ChannelID: channelID}
}

func (k ProcessKey) String() string {
	if k.ChannelID != "" {
		return fmt.Sprintf("%s-%s-%s-%s", k.SourceNodeID, k.TargetNodeID, k.Role, k.ChannelID)
	}
	return fmt.Sprintf("%s-%s-%s", k.SourceNodeID, k.TargetNodeID, k.Role)
}

type ThreadData struct {
	Name       string
	StackTrace string
}

// ProcessRecord is the persisted form of a tracker. The owning worker
// and the nested history snapshots are not part of it.
type ProcessRecord struct {
	ID                    string               `json:"id"`
	Key                   ProcessKey           `json:"key"`
	Status                ProcessStatus        `json:"status"`
	CurrentDataCount      int64                `json:"current_data_count"`
	DataCountTarget       int64                `json:"data_count_target"`
	BatchCount            int64                `json:"batch_count"`
	CurrentBatchID        int64                `json:"current_batch_id"`
	CurrentBatchCount     int64                `json:"current_batch_count"`
	CurrentLoadID         int64                `json:"current_load_id"`
	TotalDataCount        int64                `json:"total_data_count"`
	CurrentChannelID      string               `json:"current_channel_id,omitempty"`
	ThreadPerChannel      bool                 `json:"thread_per_channel,omitempty"`
	CurrentTableName      string               `json:"current_table_name,omitempty"`
	StartTime             time.Time            `json:"start_time"`
	LastStatusChangeTime  time.Time            `json:"last_status_change_time"`
	CurrentBatchStartTime time.Time            `json:"current_batch_start_time"`
	EndTime               time.Time            `json:"end_time"`
	VisitedStatuses       []ProcessStatus      `json:"visited_statuses,omitempty"`
	StatusStartHistory    map[string]time.Time `json:"status_start_history,omitempty"`
	StatusEnteredHistory  map[string]time.Time `json:"status_entered_history,omitempty"`
}
