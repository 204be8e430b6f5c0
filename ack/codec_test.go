package ack_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/nodesync/ack"
	"github.com/warriorguo/nodesync/types"
)

func sampleBatches() []types.BatchInfo {
	return []types.BatchInfo{
		{
			BatchID:        1,
			NodeID:         "node2",
			OK:             true,
			NetworkMillis:  120,
			FilterMillis:   5,
			DatabaseMillis: 40,
			ByteCount:      2048,
		},
		{
			BatchID:        2,
			NodeID:         "node2",
			OK:             false,
			ErrorLine:      17,
			SQLState:       "23000",
			SQLCode:        1062,
			SQLMessage:     "Duplicate entry 'a&b=c' for key 'PRIMARY'",
			NetworkMillis:  80,
			FilterMillis:   1,
			DatabaseMillis: 300,
			ByteCount:      512,
		},
	}
}

func TestEncode(t *testing.T) {
	codec := ack.NewCodec(nil)

	blob, err := codec.Encode("node2", sampleBatches())
	require.Nil(t, err)

	lines := strings.Split(blob, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ack_batch_1=ok&ack_batch_2=17", lines[0])
	assert.Equal(t, "&ack_node_id_1=node2&ack_network_ms_1=120&ack_filter_ms_1=5&ack_database_ms_1=40&ack_byte_count_1=2048"+
		"&ack_node_id_2=node2&ack_network_ms_2=80&ack_filter_ms_2=1&ack_database_ms_2=300&ack_byte_count_2=512"+
		"&ack_sql_state_2=23000&ack_sql_code_2=1062"+
		"&ack_sql_message_2=Duplicate+entry+%27a%26b%3Dc%27+for+key+%27PRIMARY%27", lines[1])
}

func TestRoundTrip(t *testing.T) {
	codec := ack.NewCodec(nil)
	batches := sampleBatches()

	blob, err := codec.Encode("node2", batches)
	require.Nil(t, err)
	assert.Equal(t, batches, codec.Decode(blob))

	// a transport that concatenated both lines
	assert.Equal(t, batches, codec.Decode(strings.ReplaceAll(blob, "\n", "")))
	assert.Equal(t, batches, codec.Decode(strings.ReplaceAll(blob, "\n", "\r\n")))
}

func TestRoundTripPreservesOrder(t *testing.T) {
	codec := ack.NewCodec(nil)
	batches := []types.BatchInfo{
		{BatchID: 30, NodeID: "n", OK: true},
		{BatchID: 4, NodeID: "n", OK: false, ErrorLine: 2, SQLMessage: "deadlock"},
		{BatchID: 17, NodeID: "n", OK: true},
	}
	blob, err := codec.Encode("n", batches)
	require.Nil(t, err)
	assert.Equal(t, batches, codec.Decode(blob))
}

func TestEncodeEmpty(t *testing.T) {
	blob, err := ack.NewCodec(nil).Encode("node2", nil)
	require.Nil(t, err)
	assert.Equal(t, "\n", blob)
	assert.Empty(t, ack.NewCodec(nil).Decode(blob))
}

func TestEncodeIncoming(t *testing.T) {
	codec := ack.NewCodec(nil)
	batches := []types.IncomingBatch{
		{BatchID: 8, Status: types.BatchOK, ByteCount: 10},
		{BatchID: 9, Status: types.BatchLoading, FailedRowNumber: 0},
		{BatchID: 10, Status: types.BatchError, FailedRowNumber: 3, SQLState: "42S02", SQLCode: 1146, SQLMessage: "no table"},
	}
	blob, err := codec.EncodeIncoming("store-1", batches)
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(blob, "ack_batch_8=ok&ack_batch_9=0&ack_batch_10=3\n"))
	assert.NotContains(t, blob, "ack_sql_state_9")
	assert.Contains(t, blob, "ack_sql_state_10=42S02")

	decoded := codec.Decode(blob)
	require.Len(t, decoded, 3)
	assert.True(t, decoded[0].OK)
	assert.Equal(t, "store-1", decoded[0].NodeID)
	assert.False(t, decoded[1].OK)
	assert.Equal(t, "", decoded[1].SQLState)
	assert.Equal(t, int32(1146), decoded[2].SQLCode)
	assert.Equal(t, "no table", decoded[2].SQLMessage)
}

func TestAppendTo(t *testing.T) {
	codec := ack.NewCodec(nil)
	batches := []types.BatchInfo{{BatchID: 5, OK: true}}

	s, err := codec.AppendTo("http://corp:31415/sync/ack?", "corp", batches)
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(s, "http://corp:31415/sync/ack?ack_batch_5=ok\n&ack_node_id_5=corp"))

	s, err = codec.AppendTo("http://corp:31415/sync/ack?nodeId=store-1", "corp", batches)
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(s, "http://corp:31415/sync/ack?nodeId=store-1&ack_batch_5=ok"))
}

func TestEncodeUnsupportedCharset(t *testing.T) {
	opts := types.NewOptions()
	types.WithAckCharset("EBCDIC")(opts)
	codec := ack.NewCodec(opts)

	_, err := codec.Encode("node2", sampleBatches())
	require.NotNil(t, err)
	assert.True(t, types.IsFatal(err))
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestEncodeInvalidValue(t *testing.T) {
	batches := []types.BatchInfo{{BatchID: 1, OK: false, SQLMessage: "bad \xff byte"}}

	_, err := ack.NewCodec(nil).Encode("node2", batches)
	require.NotNil(t, err)
	assert.True(t, types.IsFatal(err))
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestDecodeLegacyOnly(t *testing.T) {
	decoded := ack.NewCodec(nil).Decode("ack_batch_5=ok")
	assert.Equal(t, []types.BatchInfo{{BatchID: 5, OK: true}}, decoded)

	decoded = ack.NewCodec(nil).Decode("ack_batch_6=OK&ack_batch_7=12")
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].OK)
	assert.False(t, decoded[1].OK)
	assert.Equal(t, int64(12), decoded[1].ErrorLine)
	assert.Equal(t, "", decoded[1].SQLState)
}

func TestDecodeMalformed(t *testing.T) {
	codec := ack.NewCodec(nil)

	blob := "ack_batch_1=ok&garbage&=x&ack_batch_abc=ok&ack_batch_2=%zz&ack_batch_3=oops" +
		"&ack_network_ms_1=fast&ack_byte_count_1=10&unknown_field=1" +
		"&ack_node_id_9=orphan&ack_sql_message_3=a=b"
	decoded := codec.Decode(blob)
	require.Len(t, decoded, 2)

	assert.Equal(t, int64(1), decoded[0].BatchID)
	assert.True(t, decoded[0].OK)
	assert.Equal(t, int64(0), decoded[0].NetworkMillis)
	assert.Equal(t, int64(10), decoded[0].ByteCount)

	assert.Equal(t, int64(3), decoded[1].BatchID)
	assert.False(t, decoded[1].OK)
	assert.Equal(t, int64(0), decoded[1].ErrorLine)
	assert.Equal(t, "a=b", decoded[1].SQLMessage)

	assert.Empty(t, codec.Decode(""))
	assert.Empty(t, codec.Decode("ack_node_id_1=node2&ack_byte_count_1=5"))
}

func TestDecodeAll(t *testing.T) {
	codec := ack.NewCodec(nil)
	decoded := codec.DecodeAll("ack_batch_1=ok&ack_batch_2=4", "ack_node_id_1=n1&ack_node_id_2=n1&ack_sql_code_2=7")
	require.Len(t, decoded, 2)
	assert.Equal(t, "n1", decoded[0].NodeID)
	assert.Equal(t, int32(7), decoded[1].SQLCode)
}

func TestDecodeParams(t *testing.T) {
	codec := ack.NewCodec(nil)
	params := types.Params{
		"ack_batch_20":        []string{" ok ", "ignored"},
		"ack_batch_3":         []string{"9"},
		"ack_node_id_3":       []string{" store-1 "},
		"ack_sql_state_3":     "HY000",
		"ack_database_ms_20":  []string{"15"},
		"ack_batch_oops":      "ok",
		"ack_sql_message_3":   []string{},
		"unrelated_parameter": "1",
	}
	decoded := codec.DecodeParams(params)
	require.Len(t, decoded, 2)

	assert.Equal(t, int64(3), decoded[0].BatchID)
	assert.False(t, decoded[0].OK)
	assert.Equal(t, int64(9), decoded[0].ErrorLine)
	assert.Equal(t, "store-1", decoded[0].NodeID)
	assert.Equal(t, "HY000", decoded[0].SQLState)
	assert.Equal(t, "", decoded[0].SQLMessage)

	assert.Equal(t, int64(20), decoded[1].BatchID)
	assert.True(t, decoded[1].OK)
	assert.Equal(t, int64(15), decoded[1].DatabaseMillis)
}

func TestDecodeValues(t *testing.T) {
	values, err := url.ParseQuery("ack_batch_1=ok&ack_node_id_1=corp&ack_byte_count_1=99")
	require.Nil(t, err)

	decoded := ack.NewCodec(nil).DecodeValues(values)
	assert.Equal(t, []types.BatchInfo{{BatchID: 1, NodeID: "corp", OK: true, ByteCount: 99}}, decoded)
}

func TestCustomOKValue(t *testing.T) {
	opts := types.NewOptions()
	types.WithAckOKValue("done")(opts)
	codec := ack.NewCodec(opts)

	blob, err := codec.Encode("n", []types.BatchInfo{{BatchID: 1, NodeID: "n", OK: true}})
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(blob, "ack_batch_1=done\n"))
	assert.True(t, codec.Decode(blob)[0].OK)
	assert.False(t, ack.NewCodec(nil).Decode(blob)[0].OK)
}

func TestDecodeNonCanonicalBatchID(t *testing.T) {
	codec := ack.NewCodec(nil)

	decoded := codec.Decode("ack_batch_05=ok&ack_batch_+6=ok&ack_batch_007=12&ack_node_id_5=store-1")
	require.Len(t, decoded, 3)
	assert.Equal(t, types.BatchInfo{BatchID: 5, NodeID: "store-1", OK: true}, decoded[0])
	assert.Equal(t, types.BatchInfo{BatchID: 6, OK: true}, decoded[1])
	assert.False(t, decoded[2].OK)
	assert.Equal(t, int64(7), decoded[2].BatchID)
	assert.Equal(t, int64(12), decoded[2].ErrorLine)

	decoded = codec.DecodeParams(types.Params{
		"ack_batch_05": "ok",
		"ack_batch_5":  "ok",
		"ack_batch_09": []string{"3"},
	})
	require.Len(t, decoded, 2)
	assert.Equal(t, int64(5), decoded[0].BatchID)
	assert.True(t, decoded[0].OK)
	assert.Equal(t, int64(9), decoded[1].BatchID)
	assert.Equal(t, int64(3), decoded[1].ErrorLine)
}
