package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally/v4"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/memory"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/testutil"
)

type instrumentSuite struct {
	suite.Suite

	ctx   context.Context
	scope tally.TestScope
	a     *adapter.Instrumented
}

func TestInstrument(t *testing.T) {
	suite.Run(t, new(instrumentSuite))
}

func (s *instrumentSuite) SetupTest() {
	s.ctx = context.Background()
	s.scope = tally.NewTestScope("", map[string]string{})
	s.a = adapter.Instrument(memory.New(adapter.Settings{}), s.scope)
	s.Require().NoError(s.a.Define(testutil.PersonModel()))
}

// counter sums the counters named name with the given result tag.
func (s *instrumentSuite) counter(name, result string) int64 {
	var total int64
	for _, c := range s.scope.Snapshot().Counters() {
		tags := c.Tags()
		if c.Name() == name && tags["result"] == result && tags["adapter"] == memory.Name {
			total += c.Value()
		}
	}
	return total
}

func (s *instrumentSuite) TestCountsSuccessAndFailure() {
	_, err := s.a.Create(s.ctx, "Person", adapter.Record{"name": "Alice"})
	s.Require().NoError(err)
	_, err = s.a.Find(s.ctx, "Person", condition.Condition{})
	s.Require().NoError(err)
	_, err = s.a.Find(s.ctx, "Missing", condition.Condition{})
	s.Require().Error(err)

	s.Equal(int64(1), s.counter("create", "success"))
	s.Equal(int64(1), s.counter("find", "success"))
	s.Equal(int64(1), s.counter("find", "fail"))
	s.Zero(s.counter("create", "fail"))
}

func (s *instrumentSuite) TestRecordsLatency() {
	_, err := s.a.Count(s.ctx, "Person", condition.Condition{})
	s.Require().NoError(err)

	found := false
	for _, tm := range s.scope.Snapshot().Timers() {
		if tm.Name() == "count_latency" {
			found = true
			s.Len(tm.Values(), 1)
		}
	}
	s.True(found, "count_latency timer not recorded")
}

func (s *instrumentSuite) TestUnwrap() {
	_, ok := s.a.Unwrap().(*memory.Adapter)
	s.True(ok)
	s.Equal(memory.Name, s.a.Name())
}
