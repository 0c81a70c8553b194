package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(
	ctx context.Context,
	subject string,
	data []byte,
	opts ...jetstream.PublishOpt,
) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, data)
	ack, _ := args.Get(0).(*jetstream.PubAck)
	return ack, args.Error(1)
}

type recordingNotifier struct {
	calls []Snapshot
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, _ model.Family, snapshot Snapshot) error {
	r.calls = append(r.calls, snapshot)
	return r.err
}

var snapshot = Snapshot{
	Family:   model.FamilyItem,
	ID:       "0xabc:1",
	Version:  3,
	Document: json.RawMessage(`{"id":"0xabc:1"}`),
}

func TestNATSNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{}

	expected, err := json.Marshal(snapshot)
	require.NoError(t, err)

	pub.On("Publish", ctx, "reducer.item", expected).Return(&jetstream.PubAck{Stream: "S", Sequence: 1}, nil).Once()

	n := NewNATSNotifier(pub, "reducer", nil)
	require.Equal(t, "reducer.token", n.Subject(model.FamilyToken))
	require.NoError(t, n.Notify(ctx, model.FamilyItem, snapshot))
	require.NoError(t, n.Close())

	pub.AssertExpectations(t)
}

func TestNATSNotifier_PublishError(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{}
	pub.On("Publish", ctx, "reducer.item", mock.Anything).Return(nil, errors.New("no responders")).Once()

	err := NewNATSNotifier(pub, "reducer", nil).Notify(ctx, model.FamilyItem, snapshot)
	require.ErrorContains(t, err, "no responders")
}

func TestFanout(t *testing.T) {
	ctx := context.Background()

	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}

	require.NoError(t, Fanout{ok, NewLogNotifier(nil)}.Notify(ctx, model.FamilyItem, snapshot))
	require.Len(t, ok.calls, 1)

	// a failing notifier does not stop delivery to the others
	err := Fanout{failing, ok}.Notify(ctx, model.FamilyItem, snapshot)
	require.ErrorContains(t, err, "boom")
	require.Len(t, failing.calls, 1)
	require.Len(t, ok.calls, 2)

	require.NoError(t, Nop{}.Notify(ctx, model.FamilyItem, snapshot))
}

func TestNew_LogOnly(t *testing.T) {
	n, closeFn, err := New(context.Background(), &config.NotifierConfig{Type: config.NotifierLog}, nil)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.Len(t, n.(Fanout), 1)

	n, closeFn, err = New(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.IsType(t, &LogNotifier{}, n)
}
