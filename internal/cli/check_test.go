package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/validate"
)

func TestCheck_Valid(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "text")
	st := migratedStore(t, opts)

	alice := entity.NewRecord("user", "", "alice")
	require.NoError(t, st.Save(ctx, alice))
	goTag := &entity.Record{EntityType: "tag", Identifier: model.StringID("go"), BundleName: "topic", Title: "Go", EnforceNew: true}
	require.NoError(t, st.Save(ctx, goTag))

	node := entity.NewRecord("node", "article", "hello")
	node.SetRefs("owner", []model.Reference{{TargetType: "user", TargetID: alice.ID()}})
	node.SetRefs("related", []model.Reference{
		{TargetType: "tag", TargetID: model.StringID("go")},
		{TargetType: "user", TargetID: alice.ID()},
	})
	require.NoError(t, st.Save(ctx, node))

	out, err := execute(t, NewCheckCommand(opts), "--entity-type", "node")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 3 reference(s) on 1 node entit(ies) valid")
}

func TestCheck_Violations(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "json")
	st := migratedStore(t, opts)

	alice := entity.NewRecord("user", "", "alice")
	require.NoError(t, st.Save(ctx, alice))
	place := &entity.Record{EntityType: "tag", Identifier: model.StringID("paris"), BundleName: "place", Title: "Paris", EnforceNew: true}
	require.NoError(t, st.Save(ctx, place))
	other := entity.NewRecord("node", "page", "other")
	require.NoError(t, st.Save(ctx, other))

	node := entity.NewRecord("node", "article", "hello")
	node.SetRefs("owner", []model.Reference{{TargetType: "user", TargetID: model.IntID(99)}})
	node.SetRefs("related", []model.Reference{
		{TargetType: "tag", TargetID: model.StringID("paris")},
		{TargetType: "node", TargetID: other.ID()},
	})
	require.NoError(t, st.Save(ctx, node))

	out, err := execute(t, NewCheckCommand(opts), "--entity-type", "node")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   CheckReport `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeViolations, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Entities)
	assert.Equal(t, 3, resp.Data.References)

	type issue struct {
		field string
		delta int
		code  validate.ViolationCode
	}
	var got []issue
	for _, is := range resp.Data.Issues {
		assert.Equal(t, node.ID().String(), is.EntityID)
		got = append(got, issue{is.Field, is.Delta, is.Code})
	}
	assert.Equal(t, []issue{
		{"owner", 0, validate.CodeDanglingReference},
		{"related", 0, validate.CodeDisallowedBundle},
		{"related", 1, validate.CodeDisallowedTargetType},
	}, got)
}

func TestCheck_UnknownEntityType(t *testing.T) {
	_, err := execute(t, NewCheckCommand(testOptions(t, "text")), "--entity-type", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeUsage)
}
