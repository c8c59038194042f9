package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/router"
	"github.com/Josh5/secrets-sync/internal/sink"
)

func sampleDispatches() []router.Dispatch {
	return []router.Dispatch{
		{
			Sink: config.SinkSpec{Name: "ssm", Type: "ssm", Prefix: "/app/"},
			Items: []router.RoutedItem{
				{Item: item(t0, "/app/DB_URL", "postgres://x", ""), SourceName: "env"},
			},
		},
	}
}

// item is a tiny local constructor to keep sampleDispatches readable.
func item(_ struct{}, name, value, description string) routedItemLiteral {
	return routedItemLiteral{Name: name, Value: value, Description: description}
}

type routedItemLiteral = itemLiteral

type itemLiteral = struct {
	Name        string
	Value       string
	Description string
}

var t0 struct{}

func TestPreview_ListFormatHidesValuesByDefault(t *testing.T) {
	var buf bytes.Buffer
	err := Preview(&buf, dispatchesForTest(), FormatList, false)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/app/DB_URL")
	assert.NotContains(t, buf.String(), "postgres://x")
}

func TestPreview_ListFormatShowsValuesWhenRequested(t *testing.T) {
	var buf bytes.Buffer
	err := Preview(&buf, dispatchesForTest(), FormatList, true)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "postgres://x")
}

func TestPreview_JSONFormatMatchesSchema(t *testing.T) {
	var buf bytes.Buffer
	err := Preview(&buf, dispatchesForTest(), FormatJSON, true)
	require.NoError(t, err)

	var decoded []previewSink
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "ssm", decoded[0].Name)
	assert.Equal(t, []string{"env"}, decoded[0].Sources)
	require.Len(t, decoded[0].Items, 1)
	assert.Equal(t, "/app/DB_URL", decoded[0].Items[0].Name)
	assert.Equal(t, "postgres://x", decoded[0].Items[0].Value)
}

func TestPreview_TableFormatOmitsValueColumnByDefault(t *testing.T) {
	var buf bytes.Buffer
	err := Preview(&buf, dispatchesForTest(), FormatTable, false)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SINK  NAME         SOURCE\n")
}

func TestPrintSyncEvent_CreatedWithoutValue(t *testing.T) {
	var buf bytes.Buffer
	PrintSyncEvent(&buf, sink.Event{Sink: "ssm", FullName: "/app/X", Outcome: sink.OutcomeCreated, NewValue: "secret"}, false)
	assert.Equal(t, "ssm: created /app/X\n", buf.String())
}

func TestPrintSyncEvent_ChangedWithValue(t *testing.T) {
	var buf bytes.Buffer
	PrintSyncEvent(&buf, sink.Event{Sink: "ssm", FullName: "/app/X", Outcome: sink.OutcomeChanged, OldValue: "a", NewValue: "b"}, true)
	assert.Equal(t, "ssm: changed /app/X \"a\" -> \"b\"\n", buf.String())
}

func TestPrintSyncEvent_Failed(t *testing.T) {
	var buf bytes.Buffer
	PrintSyncEvent(&buf, sink.Event{Sink: "ssm", FullName: "/app/X", Outcome: sink.OutcomeFailed, FailReason: sink.FailReasonExists, Err: errors.New("boom")}, false)
	assert.Equal(t, "ssm: failed /app/X (exists): boom\n", buf.String())
}

func TestSummary_ExitCodeZeroWhenNoFailures(t *testing.T) {
	var buf bytes.Buffer
	code := Summary(&buf, []sink.Event{
		{Sink: "ssm", Outcome: sink.OutcomeCreated},
		{Sink: "ssm", Outcome: sink.OutcomeUnchanged},
	})
	assert.Equal(t, 0, code)
	assert.Contains(t, buf.String(), "created=1 unchanged=1 changed=0 failed=0")
}

func TestSummary_ExitCodeOneWhenAnyFailure(t *testing.T) {
	var buf bytes.Buffer
	code := Summary(&buf, []sink.Event{
		{Sink: "ssm", Outcome: sink.OutcomeFailed},
	})
	assert.Equal(t, 1, code)
}

func dispatchesForTest() []router.Dispatch {
	return []router.Dispatch{
		{
			Sink: config.SinkSpec{Name: "ssm", Type: "ssm", Prefix: "/app/"},
			Items: []router.RoutedItem{
				{Item: item(t0, "/app/DB_URL", "postgres://x", ""), SourceName: "env"},
			},
		},
	}
}
