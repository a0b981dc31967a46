package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMux(t *testing.T) {
	m := NewMux()
	called := false
	m.Register(JobTypeNotionSync, func(context.Context, *Job) error {
		called = true
		return nil
	})

	require.NoError(t, m.Handle(context.Background(), &Job{Type: JobTypeNotionSync}))
	assert.True(t, called)
	assert.True(t, m.Registered(JobTypeNotionSync))
	assert.ErrorIs(t, m.Handle(context.Background(), &Job{Type: JobTypeBackupUpload}), ErrUnknownJobType)
}

func TestParseJobType(t *testing.T) {
	got, err := ParseJobType("bigquery_export")
	require.NoError(t, err)
	assert.Equal(t, JobTypeBigQueryExport, got)

	_, err = ParseJobType("parse_document")
	assert.ErrorIs(t, err, ErrUnknownJobType)
}
