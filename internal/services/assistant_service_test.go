package services

import (
	"context"
	"encoding/base64"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/dinedesk/internal/agent"
	"github.com/yoockh/dinedesk/internal/cache"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/responses"
	"github.com/yoockh/dinedesk/internal/utils"
)

type assistantFixture struct {
	svc           AssistantService
	mr            *miniredis.Miniredis
	restaurants   *fakeRestaurants
	conversations *fakeConversations
	reservations  *fakeReservations
	classifier    *fakeClassifier
	reasoner      *bookingReasoner
	events        *fakePublisher
}

func newAssistantFixture(t *testing.T, c cache.Cache) *assistantFixture {
	t.Helper()
	f := &assistantFixture{
		restaurants:   &fakeRestaurants{rows: map[string]*models.Restaurant{testRestaurantID: testRestaurant()}},
		conversations: &fakeConversations{},
		reservations:  &fakeReservations{},
		classifier:    &fakeClassifier{},
		reasoner:      &bookingReasoner{},
		events:        &fakePublisher{},
	}
	if c == nil {
		f.mr = miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		c = cache.NewRedisCache(rdb, "test:")
	}

	gen := responses.MustNewGenerator()
	now := func() time.Time { return testNow }
	ag := agent.New(f.reasoner, agent.NewRegistry(f.reservations, fakeMenu{}, &fakeOrders{}), gen, nil, agent.Options{Now: now})

	f.svc = NewAssistantService(AssistantDeps{
		Restaurants: f.restaurants,
		Customers: &fakeCustomers{rows: map[string]*models.Customer{
			testCustomerID: {ID: testCustomerID, RestaurantID: testRestaurantID, Name: "Ada Lovelace", VisitCount: 3},
		}},
		Conversations: f.conversations,
		Cache:         c,
		Classifier:    f.classifier,
		Agent:         ag,
		Responses:     gen,
		Events:        f.events,
		Now:           now,
	})
	return f
}

var resCode = regexp.MustCompile(`RES-[0-9A-F]{8}`)

func bookingInput() ProcessInput {
	return ProcessInput{
		RestaurantID: testRestaurantID,
		Channel:      models.ChannelWeb,
		SenderID:     "web-visitor-1",
		Message:      "Table for 4 tomorrow at 7pm please, Ada, +1 555 123 4567",
	}
}

func TestProcess_BooksTable(t *testing.T) {
	f := newAssistantFixture(t, nil)

	res, err := f.svc.Process(context.Background(), bookingInput())
	require.NoError(t, err)

	assert.Regexp(t, resCode, res.Reply)
	assert.Equal(t, "reservation", res.Intent)
	assert.False(t, res.Cached)
	assert.False(t, res.Degraded)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, ToolCallSummary{Name: "make_reservation", OK: true}, res.ToolCalls[0])
	assert.Equal(t, "web-visitor-1", res.Metadata["thread_id"])
	assert.NotEmpty(t, res.Metadata["request_id"])

	require.Len(t, f.reservations.rows, 1)
	row := f.reservations.rows[0]
	assert.Equal(t, 4, row.PartySize)
	assert.Equal(t, time.Date(2025, 6, 11, 19, 0, 0, 0, time.UTC), row.ReservedAt.UTC())

	conv, err := f.conversations.GetByThread(context.Background(), testRestaurantID, models.ChannelWeb, "web-visitor-1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "assistant", conv.Messages[1].Role)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, "reservation", ev.Intent)
	require.Len(t, ev.ToolCalls, 1)
	assert.True(t, ev.ToolCalls[0].OK)
}

func TestProcess_RepeatServedFromCache(t *testing.T) {
	f := newAssistantFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)
	calls := f.reasoner.Calls()

	in := bookingInput()
	in.Message = "  table for 4 TOMORROW at 7pm please, ada, +1 555 123 4567 "
	second, err := f.svc.Process(ctx, in)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, calls, f.reasoner.Calls(), "cache hit must not reach the agent")
	assert.Equal(t, 1, f.reservations.creates)
	assert.Equal(t, 1, f.restaurants.loads, "restaurant served from cache")

	// both exchanges are still logged
	conv, err := f.conversations.GetByThread(ctx, testRestaurantID, models.ChannelWeb, "web-visitor-1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	require.Len(t, f.events.events, 2)
	assert.True(t, f.events.events[1].Cached)
}

func TestProcess_CacheIsScopedPerThread(t *testing.T) {
	f := newAssistantFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)

	in := bookingInput()
	in.SenderID = "web-visitor-2"
	res, err := f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestProcess_ExpiredCacheReusesReservation(t *testing.T) {
	f := newAssistantFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)

	f.mr.FastForward(2 * time.Hour)

	again, err := f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)
	assert.False(t, again.Cached)
	assert.Equal(t, resCode.FindString(first.Reply), resCode.FindString(again.Reply))
	assert.Equal(t, 1, f.reservations.creates)
	assert.Len(t, f.reservations.rows, 1)
}

func TestProcess_CacheErrorsAreMisses(t *testing.T) {
	f := newAssistantFixture(t, brokenCache{})
	ctx := context.Background()

	res, err := f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)
	assert.Regexp(t, resCode, res.Reply)

	res, err = f.svc.Process(ctx, bookingInput())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, f.reservations.creates)
}

func TestProcess_ConcurrentDuplicatesCoalesce(t *testing.T) {
	f := newAssistantFixture(t, nil)
	f.reasoner.gate = make(chan struct{})
	ctx := context.Background()

	const n = 3
	var wg sync.WaitGroup
	results := make([]*ProcessResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Process(ctx, bookingInput())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return f.reasoner.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.reasoner.gate)
	wg.Wait()

	assert.Equal(t, 1, f.reservations.creates)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Regexp(t, resCode, r.Reply)
	}
}

func TestProcess_PersonalizesForKnownCustomer(t *testing.T) {
	f := newAssistantFixture(t, nil)

	in := bookingInput()
	in.CustomerID = testCustomerID
	res, err := f.svc.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Welcome back, Ada!")
}

func TestProcess_ComplaintHandsOff(t *testing.T) {
	f := newAssistantFixture(t, nil)

	in := bookingInput()
	in.Message = "The food was terrible and nobody cared"
	res, err := f.svc.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "complaint", res.Intent)
	assert.Equal(t, true, res.Metadata["handoff"])
	assert.Contains(t, res.Reply, "passed your message to our team")
	assert.Zero(t, f.reasoner.Calls())
	require.Len(t, f.events.events, 1)
	assert.True(t, f.events.events[0].Handoff)

	// handoffs are never cached
	res, err = f.svc.Process(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestProcess_DegradedIsNotCached(t *testing.T) {
	f := newAssistantFixture(t, nil)
	f.reasoner.fail = true

	res, err := f.svc.Process(context.Background(), bookingInput())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reply, "+1 555 0100")

	res, err = f.svc.Process(context.Background(), bookingInput())
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestProcess_SMSIsFormatted(t *testing.T) {
	f := newAssistantFixture(t, nil)

	in := bookingInput()
	in.Channel = "SMS"
	res, err := f.svc.Process(context.Background(), in)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(res.Reply)), 320)
	assert.NotContains(t, res.Reply, "\n")
}

func TestProcess_Validation(t *testing.T) {
	f := newAssistantFixture(t, nil)

	tests := []struct {
		name   string
		mutate func(*ProcessInput)
		code   utils.Code
		reason string
	}{
		{"missing restaurant", func(in *ProcessInput) { in.RestaurantID = "" }, utils.CodeInvalidArgument, "missing_restaurant_id"},
		{"bad restaurant id", func(in *ProcessInput) { in.RestaurantID = "trattoria" }, utils.CodeInvalidArgument, "invalid_restaurant_id"},
		{"unknown restaurant", func(in *ProcessInput) { in.RestaurantID = "99999999-9999-9999-9999-999999999999" }, utils.CodeNotFound, "unknown_restaurant"},
		{"bad channel", func(in *ProcessInput) { in.Channel = "fax" }, utils.CodeInvalidArgument, "invalid_channel"},
		{"empty message", func(in *ProcessInput) { in.Message = "   " }, utils.CodeInvalidArgument, "empty_message"},
		{"long message", func(in *ProcessInput) { in.Message = string(make([]rune, 4001)) }, utils.CodeInvalidArgument, "message_too_long"},
		{"bad customer id", func(in *ProcessInput) { in.CustomerID = "ada" }, utils.CodeInvalidArgument, "invalid_customer_id"},
		{"voice disabled", func(in *ProcessInput) {
			in.Message = ""
			in.AudioBase64 = base64.StdEncoding.EncodeToString([]byte("RIFF"))
		}, utils.CodeInvalidArgument, "voice_disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bookingInput()
			tt.mutate(&in)
			_, err := f.svc.Process(context.Background(), in)
			require.Error(t, err)
			assert.True(t, utils.IsCode(err, tt.code), err.Error())
			assert.Equal(t, tt.reason, utils.ReasonOf(err))
		})
	}
	assert.Zero(t, f.reasoner.Calls())
}

func TestProcess_CacheIsScopedPerChannelForKnownCustomer(t *testing.T) {
	f := newAssistantFixture(t, nil)
	ctx := context.Background()

	in := bookingInput()
	in.CustomerID = testCustomerID
	in.Channel = models.ChannelEmail
	email, err := f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, email.Reply, "Best regards")

	in.Channel = models.ChannelSMS
	sms, err := f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.False(t, sms.Cached)
	assert.NotContains(t, sms.Reply, "\n")
	assert.NotContains(t, sms.Reply, "Best regards")
	assert.Equal(t, resCode.FindString(email.Reply), resCode.FindString(sms.Reply))

	again, err := f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, sms.Reply, again.Reply)
}

func TestProcess_CancelledLeaderDoesNotDegradeFollowers(t *testing.T) {
	f := newAssistantFixture(t, nil)
	f.reasoner.gate = make(chan struct{})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Process(leaderCtx, bookingInput())
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return f.reasoner.Calls() >= 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		res *ProcessResult
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := f.svc.Process(context.Background(), bookingInput())
		follower <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeTimeout))
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(f.reasoner.gate)
	var got outcome
	select {
	case got = <-follower:
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not return")
	}
	require.NoError(t, got.err)
	assert.False(t, got.res.Degraded)
	assert.Equal(t, true, got.res.Metadata["coalesced"])
	assert.Regexp(t, resCode, got.res.Reply)
	assert.Equal(t, 1, f.reservations.creates)

	f.conversations.mu.Lock()
	defer f.conversations.mu.Unlock()
	assert.Equal(t, 1, f.conversations.appends)
}

func TestProcess_CustomerCacheIsNotSharedAcrossThreads(t *testing.T) {
	f := newAssistantFixture(t, nil)
	ctx := context.Background()

	in := bookingInput()
	in.CustomerID = testCustomerID
	first, err := f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// someone else quoting the same customer id from another thread
	other := in
	other.SenderID = "web-visitor-2"
	res, err := f.svc.Process(ctx, other)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	res, err = f.svc.Process(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}
