package types

// BatchInfo is the acknowledged outcome of one batch.
type BatchInfo struct {
	BatchID        int64
	NodeID         string
	OK             bool
	ErrorLine      int64
	SQLState       string
	SQLCode        int32
	SQLMessage     string
	NetworkMillis  int64
	FilterMillis   int64
	DatabaseMillis int64
	ByteCount      int64
}

func NewBatchInfo(batchID int64) *BatchInfo {
	return &BatchInfo{BatchID: batchID}
}

type IncomingBatchStatus string

const (
	BatchOK      IncomingBatchStatus = "OK"
	BatchError   IncomingBatchStatus = "ER"
	BatchLoading IncomingBatchStatus = "LD"
	BatchResend  IncomingBatchStatus = "RS"
	BatchIgnored IncomingBatchStatus = "IG"
)

// IncomingBatch is the receiving node's record of a batch it applied.
type IncomingBatch struct {
	BatchID         int64
	NodeID          string
	ChannelID       string
	Status          IncomingBatchStatus
	FailedRowNumber int64
	NetworkMillis   int64
	FilterMillis    int64
	DatabaseMillis  int64
	ByteCount       int64
	SQLState        string
	SQLCode         int32
	SQLMessage      string
}

// AckInfo converts the batch into the outcome reported back to the
// sender. Only an ER batch carries SQL diagnostics over the wire.
func (b *IncomingBatch) AckInfo() BatchInfo {
	info := BatchInfo{
		BatchID:        b.BatchID,
		NodeID:         b.NodeID,
		OK:             b.Status == BatchOK,
		NetworkMillis:  b.NetworkMillis,
		FilterMillis:   b.FilterMillis,
		DatabaseMillis: b.DatabaseMillis,
		ByteCount:      b.ByteCount,
	}
	if !info.OK {
		info.ErrorLine = b.FailedRowNumber
	}
	if b.Status == BatchError {
		info.SQLState = b.SQLState
		info.SQLCode = b.SQLCode
		info.SQLMessage = b.SQLMessage
	}
	return info
}
