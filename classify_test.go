package conversync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyByOrigin(t *testing.T) {
	c := NewClassifier(newFakeClock(), nil)

	cases := []struct {
		origin Origin
		want   ErrorKind
	}{
		{OriginConn, KindConnection},
		{OriginHeartbeat, KindHeartbeat},
		{OriginReconciler, KindMessage},
		{OriginTakeover, KindMessage},
	}
	for _, tc := range cases {
		ce := c.Classify(errors.New("boom"), tc.origin)
		assert.Equal(t, tc.want, ce.Kind, "origin %d", tc.origin)
	}
}

func TestClassifyContentFallback(t *testing.T) {
	c := NewClassifier(newFakeClock(), nil)

	jsonErr := json.Unmarshal([]byte(`{`), &struct{}{})
	require.Error(t, jsonErr)

	cases := []struct {
		name   string
		err    error
		origin Origin
		want   ErrorKind
	}{
		{"json parse", fmt.Errorf("frame: decode: %w", jsonErr), OriginFrame, KindSerialization},
		{"deadline", context.DeadlineExceeded, OriginREST, KindTimeout},
		{"dial refused", errors.New("dial tcp 10.0.0.1:9000: connection refused"), OriginUnknown, KindConnection},
		{"timeout string", errors.New("api GET /messages: request timeout"), OriginREST, KindTimeout},
		{"rest application error", errors.New("api POST /messages: 422 invalid sender"), OriginREST, KindMessage},
		{"totally opaque", errors.New("weirdness"), OriginUnknown, KindUnknown},
	}
	for _, tc := range cases {
		ce := c.Classify(tc.err, tc.origin)
		assert.Equal(t, tc.want, ce.Kind, tc.name)
	}
}

func TestReportNotifiesKindAndWildcardListeners(t *testing.T) {
	clock := newFakeClock()
	c := NewClassifier(clock, nil)

	var kindHits, anyHits []ErrorKind
	c.OnKind(KindConnection, func(ce Classified) { kindHits = append(kindHits, ce.Kind) })
	c.OnKind(KindAny, func(ce Classified) { anyHits = append(anyHits, ce.Kind) })

	c.Report(errors.New("socket dropped"), OriginConn)
	c.Report(errors.New("late ack"), OriginHeartbeat)

	assert.Equal(t, []ErrorKind{KindConnection}, kindHits)
	assert.Equal(t, []ErrorKind{KindConnection, KindHeartbeat}, anyHits)
}

func TestClassifiedRecordFields(t *testing.T) {
	clock := newFakeClock()
	c := NewClassifier(clock, nil)

	ce := c.Classify(fmt.Errorf("dial: %w", errors.New("connection refused")), OriginConn)
	assert.Equal(t, KindConnection, ce.Kind)
	assert.Equal(t, "dial", ce.Message)
	assert.Equal(t, "dial: connection refused", ce.Detail)
	assert.Equal(t, clock.Now(), ce.Timestamp)
}
