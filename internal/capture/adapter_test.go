package capture

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/aurascope/aurascope/internal/domain"
)

const gatewayURL = "https://org.lightning.force.com/aura?r=1"

type sinkRecorder struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (s *sinkRecorder) Process(_ context.Context, env domain.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *sinkRecorder) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.envs))
	for i, env := range s.envs {
		ids[i] = env.Exchange.ID
	}
	return ids
}

type stubFetcher struct {
	bodies map[string]string
	calls  int
}

func (f *stubFetcher) FetchBody(_ context.Context, ref string) (string, error) {
	f.calls++
	body, ok := f.bodies[ref]
	if !ok {
		return "", errors.New("reference expired")
	}
	return body, nil
}

func envelope(id, rawURL string) domain.Envelope {
	return domain.Envelope{
		Channel: "tab-1",
		Exchange: &domain.RawExchange{
			ID:     id,
			URL:    rawURL,
			Method: "POST",
			Status: 200,
		},
	}
}

func TestAdapter_IgnoresUnrecognizedURL(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(Config{Sink: sink})

	a.Offer(context.Background(), envelope("ex-1", "https://org.lightning.force.com/analytics/wave/dashboard"))
	a.Attach()

	if got := sink.ids(); len(got) != 0 {
		t.Errorf("sink received %v, want none", got)
	}
	stats := a.Stats()
	if stats.Ignored != 1 {
		t.Errorf("Stats().Ignored = %d, want 1", stats.Ignored)
	}
	if stats.Accepted != 0 {
		t.Errorf("Stats().Accepted = %d, want 0", stats.Accepted)
	}
}

func TestAdapter_BuffersUntilAttach(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(Config{Sink: sink})
	ctx := context.Background()

	a.Offer(ctx, envelope("ex-1", gatewayURL))
	a.Offer(ctx, envelope("ex-2", gatewayURL))
	if got := sink.ids(); len(got) != 0 {
		t.Fatalf("sink received %v before attach, want none", got)
	}
	if stats := a.Stats(); stats.Pending != 2 {
		t.Fatalf("Stats().Pending = %d, want 2", stats.Pending)
	}

	a.Attach()
	if got, want := sink.ids(), []string{"ex-1", "ex-2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("drained ids = %v, want %v", got, want)
	}

	a.Offer(ctx, envelope("ex-3", gatewayURL))
	if got, want := sink.ids(), []string{"ex-1", "ex-2", "ex-3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids after live offer = %v, want %v", got, want)
	}

	a.Detach()
	a.Offer(ctx, envelope("ex-4", gatewayURL))
	if got := len(sink.ids()); got != 3 {
		t.Errorf("sink received %d envelopes after detach, want 3", got)
	}
	if stats := a.Stats(); stats.Pending != 1 {
		t.Errorf("Stats().Pending = %d after detach, want 1", stats.Pending)
	}
}

func TestAdapter_SecondSurfaceKeepsForwarding(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(Config{Sink: sink})
	ctx := context.Background()

	a.Attach()
	a.Attach()
	a.Detach()

	a.Offer(ctx, envelope("ex-1", gatewayURL))
	if got, want := sink.ids(), []string{"ex-1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if stats := a.Stats(); stats.Attached != 1 {
		t.Errorf("Stats().Attached = %d, want 1", stats.Attached)
	}
}

func TestAdapter_EvictsOldestWhenFull(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(Config{Sink: sink, PendingCapacity: 2})
	ctx := context.Background()

	a.Offer(ctx, envelope("ex-1", gatewayURL))
	a.Offer(ctx, envelope("ex-2", gatewayURL))
	a.Offer(ctx, envelope("ex-3", gatewayURL))
	a.Attach()

	if got, want := sink.ids(), []string{"ex-2", "ex-3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("drained ids = %v, want %v", got, want)
	}
	if stats := a.Stats(); stats.Dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", stats.Dropped)
	}
}

func TestAdapter_FetchesDeferredBody(t *testing.T) {
	sink := &sinkRecorder{}
	fetcher := &stubFetcher{bodies: map[string]string{"ref-9": `{"actions":[]}`}}
	a := New(Config{Sink: sink, Bodies: fetcher})
	a.Attach()

	env := envelope("ex-1", gatewayURL)
	env.Exchange.BodyRef = "ref-9"
	a.Offer(context.Background(), env)

	if len(sink.envs) != 1 {
		t.Fatalf("sink received %d envelopes, want 1", len(sink.envs))
	}
	if got := sink.envs[0].Exchange.ResponseBody; got != `{"actions":[]}` {
		t.Errorf("ResponseBody = %q, want fetched body", got)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls)
	}
}

func TestAdapter_SkipsFetchWhenBodyPresent(t *testing.T) {
	sink := &sinkRecorder{}
	fetcher := &stubFetcher{}
	a := New(Config{Sink: sink, Bodies: fetcher})
	a.Attach()

	env := envelope("ex-1", gatewayURL)
	env.Exchange.BodyRef = "ref-9"
	env.Exchange.ResponseBody = `{"actions":[]}`
	a.Offer(context.Background(), env)

	if fetcher.calls != 0 {
		t.Errorf("fetcher calls = %d, want 0", fetcher.calls)
	}
	if len(sink.ids()) != 1 {
		t.Errorf("sink received %d envelopes, want 1", len(sink.ids()))
	}
}

func TestAdapter_DropsOnFetchFailure(t *testing.T) {
	sink := &sinkRecorder{}
	fetcher := &stubFetcher{}
	a := New(Config{Sink: sink, Bodies: fetcher})
	a.Attach()

	env := envelope("ex-1", gatewayURL)
	env.Exchange.BodyRef = "ref-gone"
	a.Offer(context.Background(), env)

	if got := sink.ids(); len(got) != 0 {
		t.Errorf("sink received %v, want none", got)
	}
	if stats := a.Stats(); stats.Dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", stats.Dropped)
	}
}

func TestAdapter_AssignsExchangeID(t *testing.T) {
	sink := &sinkRecorder{}
	a := New(Config{Sink: sink})
	a.Attach()

	a.Offer(context.Background(), envelope("", gatewayURL))

	ids := sink.ids()
	if len(ids) != 1 {
		t.Fatalf("sink received %d envelopes, want 1", len(ids))
	}
	if ids[0] == "" {
		t.Error("exchange ID not assigned at intake")
	}
}

func TestAdapter_DetachWithoutAttach(t *testing.T) {
	a := New(Config{Sink: &sinkRecorder{}})
	a.Detach()
	if stats := a.Stats(); stats.Attached != 0 {
		t.Errorf("Stats().Attached = %d, want 0", stats.Attached)
	}
}
