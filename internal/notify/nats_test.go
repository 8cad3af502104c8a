package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/retry"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

type sent struct {
	subject string
	data    []byte
}

func TestPublishEncodesEvent(t *testing.T) {
	var got []sent
	p := newPublisher(NATSConfig{}, func(_ context.Context, subject string, data []byte) error {
		got = append(got, sent{subject, data})
		return nil
	})

	ev := TrialEvent{RunID: "r1", TrialID: 4, Status: trial.StatusPruned, Objective: 0.25}
	require.NoError(t, p.Publish(t.Context(), ev))
	require.Len(t, got, 1)
	assert.Equal(t, DefaultSubject, got[0].subject)

	var decoded TrialEvent
	require.NoError(t, json.Unmarshal(got[0].data, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestPublishRetriesThenClassifies(t *testing.T) {
	calls := 0
	p := newPublisher(NATSConfig{
		Subject: "custom.subject",
		Retry:   retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 2),
	}, func(context.Context, string, []byte) error {
		calls++
		return errors.New("no responders")
	})

	err := p.Publish(t.Context(), TrialEvent{TrialID: 9})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, derrors.CategoryNotify, ce.Category())
	id, ok := ce.Context().GetInt("trial_id")
	require.True(t, ok)
	assert.Equal(t, 9, id)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := ConnectNATS(t.Context(), NATSConfig{})
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(t.Context(), TrialEvent{}))
	assert.NoError(t, p.Close())
}
