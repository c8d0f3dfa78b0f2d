package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataloader/internal/util"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/sym"
)

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv("CI", "")

	root := &cobra.Command{Use: "dataloader"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "ls"}
	child.Flags().Bool("json", false, "")
	root.AddCommand(child)

	assert.False(t, ShouldOutputJSON(child))

	require.NoError(t, child.Flags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))

	t.Setenv("CI", "true")
	assert.True(t, ShouldOutputJSON(nil))
}

func TestWriteJSONIsIndentedUnderTest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"count": 1}))
	assert.Equal(t, "{\n  \"count\": 1\n}\n", buf.String())
}

func TestRenderRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderRecords(&buf, nil))
	assert.Equal(t, "No job configurations\n", buf.String())

	buf.Reset()
	err := RenderRecords(&buf, []*jobconfig.Record{{
		ID:               "rec-1",
		Revision:         2,
		Name:             "orders",
		State:            jobconfig.StatePublished,
		PublishedVersion: "v1.3",
		CreatedAt:        time.Now(),
	}})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "v1.3")
	assert.Contains(t, out, sym.Published)
}

func TestRenderRecord(t *testing.T) {
	var buf bytes.Buffer
	err := RenderRecord(&buf, &jobconfig.Record{
		ID:          "rec-1",
		Name:        "orders",
		State:       jobconfig.StateDraft,
		ChunkSize:   util.Ptr(250),
		Source:      jobconfig.Fragment{ResourceType: "POSTGRESQL", ResourceID: "res-1"},
		DerivedFrom: "",
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "POSTGRESQL (res-1)")
	assert.Contains(t, out, "250")
	assert.NotContains(t, out, "Derived from")
}
