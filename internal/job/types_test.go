package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorMode(t *testing.T) {
	assert.Equal(t, ModeStandard, (&Descriptor{ID: "1"}).Mode())
	assert.Equal(t, ModeStandard, (&Descriptor{Query: json.RawMessage("null")}).Mode())
	assert.Equal(t, ModeGenerated, (&Descriptor{Query: json.RawMessage(`{}`)}).Mode())
}

func TestDescriptorOutputName(t *testing.T) {
	assert.Equal(t, "query_results", (&Descriptor{}).OutputName())
	assert.Equal(t, "export.txt", (&Descriptor{ResultsFileName: "export.txt"}).OutputName())
}

func TestDescriptorValidate_GeneratedNeedsNoRouting(t *testing.T) {
	d := &Descriptor{Query: json.RawMessage(`{"select":["id"]}`)}
	assert.NoError(t, d.Validate())
}

func TestFlexID(t *testing.T) {
	var rec Record

	require.NoError(t, json.Unmarshal([]byte(`{"id":"J1"}`), &rec))
	assert.Equal(t, FlexID("J1"), rec.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":1234}`), &rec))
	assert.Equal(t, FlexID("1234"), rec.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":{}}`), &rec))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, Status("").Terminal())

	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusThrottled, StatusTimedOut} {
		assert.True(t, s.Terminal(), string(s))
	}
}
