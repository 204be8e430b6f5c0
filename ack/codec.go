// Package ack encodes and decodes the acknowledgement a receiving node
// sends back for the batches it applied.
//
// The blob has two lines. The first one only carries ack_batch_<id> with
// either the ok value or the failed row number, which is all that old
// peers understand. The second line carries node id, timings, byte count
// and, for failed batches, the SQL diagnostics.
package ack

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/warriorguo/nodesync/types"
)

const (
	BatchName          = "ack_batch_"
	NodeIDName         = "ack_node_id_"
	NetworkMillisName  = "ack_network_ms_"
	FilterMillisName   = "ack_filter_ms_"
	DatabaseMillisName = "ack_database_ms_"
	ByteCountName      = "ack_byte_count_"
	SQLStateName       = "ack_sql_state_"
	SQLCodeName        = "ack_sql_code_"
	SQLMessageName     = "ack_sql_message_"

	DefaultOKValue = "ok"

	utf8Charset = "UTF-8"
)

type Codec struct {
	okValue string
	charset string
}

// NewCodec builds a codec from opts, nil means defaults.
func NewCodec(opts *types.Options) *Codec {
	if opts == nil {
		opts = types.NewOptions()
	}
	c := &Codec{okValue: opts.AckOKValue, charset: opts.AckCharset}
	if c.okValue == "" {
		c.okValue = DefaultOKValue
	}
	if c.charset == "" {
		c.charset = utf8Charset
	}
	return c
}

type entry struct {
	info    types.BatchInfo
	withSQL bool
}

// Encode writes the acknowledgement for batches as reported by nodeID.
// SQL diagnostics are sent for every failed batch.
func (c *Codec) Encode(nodeID string, batches []types.BatchInfo) (string, error) {
	return c.encode("", nodeID, entriesOf(batches))
}

// EncodeIncoming writes the acknowledgement for batches applied locally.
// Only batches in error carry SQL diagnostics.
func (c *Codec) EncodeIncoming(nodeID string, batches []types.IncomingBatch) (string, error) {
	entries := make([]entry, 0, len(batches))
	for i := range batches {
		entries = append(entries, entry{batches[i].AckInfo(), batches[i].Status == types.BatchError})
	}
	return c.encode("", nodeID, entries)
}

// AppendTo appends the acknowledgement to baseURL. A url ending in '?'
// gets no separator before the first field.
func (c *Codec) AppendTo(baseURL, nodeID string, batches []types.BatchInfo) (string, error) {
	return c.encode(baseURL, nodeID, entriesOf(batches))
}

func entriesOf(batches []types.BatchInfo) []entry {
	entries := make([]entry, 0, len(batches))
	for _, b := range batches {
		entries = append(entries, entry{b, !b.OK})
	}
	return entries
}

func (c *Codec) checkCharset() error {
	switch strings.ToUpper(c.charset) {
	case "UTF-8", "UTF8":
		return nil
	default:
		return types.NewFatalError(errors.NotSupportedf("ack charset %s", c.charset))
	}
}

func (c *Codec) encode(prefix, nodeID string, entries []entry) (string, error) {
	if err := c.checkCharset(); err != nil {
		return "", err
	}

	b := newParamBuilder(prefix)
	for _, e := range entries {
		value := c.okValue
		if !e.info.OK {
			value = strconv.FormatInt(e.info.ErrorLine, 10)
		}
		if err := b.append(BatchName+batchKey(e.info.BatchID), value); err != nil {
			return "", errors.Trace(err)
		}
	}

	// the separator rule treats the newline as content, so the second
	// line starts with '&' and still splits once newlines are stripped
	b.newline()
	for _, e := range entries {
		if err := c.appendDetails(b, nodeID, e); err != nil {
			return "", errors.Trace(err)
		}
	}
	return b.String(), nil
}

func (c *Codec) appendDetails(b *paramBuilder, nodeID string, e entry) error {
	id := batchKey(e.info.BatchID)
	if err := b.append(NodeIDName+id, nodeID); err != nil {
		return err
	}
	if err := b.appendInt(NetworkMillisName+id, e.info.NetworkMillis); err != nil {
		return err
	}
	if err := b.appendInt(FilterMillisName+id, e.info.FilterMillis); err != nil {
		return err
	}
	if err := b.appendInt(DatabaseMillisName+id, e.info.DatabaseMillis); err != nil {
		return err
	}
	if err := b.appendInt(ByteCountName+id, e.info.ByteCount); err != nil {
		return err
	}
	if !e.withSQL {
		return nil
	}
	if err := b.append(SQLStateName+id, e.info.SQLState); err != nil {
		return err
	}
	if err := b.appendInt(SQLCodeName+id, int64(e.info.SQLCode)); err != nil {
		return err
	}
	return b.append(SQLMessageName+id, e.info.SQLMessage)
}

func batchKey(batchID int64) string {
	return strconv.FormatInt(batchID, 10)
}

// Decode reads an acknowledgement blob. Both lines may arrive joined or
// separated by newlines. Batches come back in the order of their
// ack_batch_ fields; a batch id without one is never reported.
func (c *Codec) Decode(blob string) []types.BatchInfo {
	params, fields := parseQuery(stripNewlines(blob))
	return c.readBatches(params, fields)
}

// DecodeAll decodes several parameter strings received separately, such
// as a query string and a form body.
func (c *Codec) DecodeAll(parts ...string) []types.BatchInfo {
	return c.Decode(strings.Join(parts, "&"))
}

// DecodeParams reads already parsed parameters. Multi-valued entries use
// their first value. Batches are ordered by id.
func (c *Codec) DecodeParams(params types.Params) []types.BatchInfo {
	fields := make([]batchField, 0)
	for name := range params {
		if id, ok := batchIDOf(name); ok {
			fields = append(fields, batchField{id, name})
		}
	}
	// ack_batch_5 and ack_batch_05 name the same batch, keep one
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].id == fields[j].id {
			return fields[i].name < fields[j].name
		}
		return fields[i].id < fields[j].id
	})
	unique := fields[:0]
	for i, f := range fields {
		if i == 0 || f.id != fields[i-1].id {
			unique = append(unique, f)
		}
	}
	return c.readBatches(params, unique)
}

func (c *Codec) DecodeValues(values url.Values) []types.BatchInfo {
	return c.DecodeParams(types.ParamsFromValues(values))
}

func (c *Codec) readBatches(params types.Params, fields []batchField) []types.BatchInfo {
	batches := make([]types.BatchInfo, 0, len(fields))
	for _, f := range fields {
		batches = append(batches, c.readBatch(params, f))
	}
	return batches
}

// readBatch reads the status from the field as it was received, the
// details from the names this codec writes.
func (c *Codec) readBatch(params types.Params, f batchField) types.BatchInfo {
	id := batchKey(f.id)
	info := types.NewBatchInfo(f.id)
	info.NodeID = paramString(params, NodeIDName+id)
	info.NetworkMillis = paramInt(params, NetworkMillisName+id)
	info.FilterMillis = paramInt(params, FilterMillisName+id)
	info.DatabaseMillis = paramInt(params, DatabaseMillisName+id)
	info.ByteCount = paramInt(params, ByteCountName+id)

	status := strings.TrimSpace(paramString(params, f.name))
	info.OK = strings.EqualFold(status, c.okValue)
	if !info.OK {
		info.ErrorLine = paramInt(params, f.name)
		info.SQLState = paramString(params, SQLStateName+id)
		info.SQLCode = int32(paramInt(params, SQLCodeName+id))
		info.SQLMessage = paramString(params, SQLMessageName+id)
	}
	return *info
}
