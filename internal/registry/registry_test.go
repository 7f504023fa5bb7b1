package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() CreateParams {
	return CreateParams{
		Owner:    "user-1",
		FileRef:  "gs://uploads/f1",
		FileName: "report.pdf",
		Query:    "Analyze margins",
	}
}

func TestCreateParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr string
	}{
		{name: "valid", mutate: func(*CreateParams) {}},
		{name: "missing owner", mutate: func(p *CreateParams) { p.Owner = "" }, wantErr: "owner"},
		{name: "missing fileRef", mutate: func(p *CreateParams) { p.FileRef = "" }, wantErr: "fileRef"},
		{name: "missing fileName", mutate: func(p *CreateParams) { p.FileName = "" }, wantErr: "fileName"},
		{name: "missing query", mutate: func(p *CreateParams) { p.Query = "" }, wantErr: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := p.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateRejectsInvalidParamsBeforeAnyWrite(t *testing.T) {
	// A nil client is safe here precisely because validation must happen
	// before the registry is touched.
	r := &Registry{collection: "jobs"}
	_, err := r.Create(context.Background(), CreateParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job")
}

func TestSendSnapshotLatestWins(t *testing.T) {
	out := make(chan Snapshot, 1)
	ctx := context.Background()

	first := Snapshot{Jobs: nil, Err: errors.New("old")}
	second := Snapshot{Err: errors.New("new")}

	require.True(t, sendSnapshot(ctx, out, first))
	// Consumer hasn't drained; the newer snapshot must displace the old one.
	require.True(t, sendSnapshot(ctx, out, second))

	got := <-out
	assert.EqualError(t, got.Err, "new")
	select {
	case extra := <-out:
		t.Fatalf("unexpected extra snapshot: %+v", extra)
	default:
	}
}

func TestSendSnapshotStopsOnCancel(t *testing.T) {
	out := make(chan Snapshot) // unbuffered and never read
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() {
		done <- sendSnapshot(ctx, out, Snapshot{})
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("sendSnapshot did not return after cancellation")
	}
}
