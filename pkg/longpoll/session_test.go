package longpoll_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/HKUDS/graffitibot-go/pkg/longpoll"
	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"github.com/HKUDS/graffitibot-go/pkg/transport"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errStop = errors.New("stop")

type pollResult struct {
	resp *vkapi.LongPollResponse
	err  error
}

// fakeAPI answers polls from a script and returns errStop once it runs out,
// which ends Session.Run.
type fakeAPI struct {
	servers     []vkapi.PollServer
	serverErr   error
	serverCalls int
	polls       []pollResult
	polledWith  []vkapi.PollServer
	polledWaits []int
}

func (f *fakeAPI) GetLongPollServer(_ context.Context, groupID int) (vkapi.PollServer, error) {
	f.serverCalls++
	if f.serverErr != nil {
		return vkapi.PollServer{}, f.serverErr
	}
	if len(f.servers) == 0 {
		return vkapi.PollServer{}, fmt.Errorf("no server scripted for group %d", groupID)
	}
	s := f.servers[0]
	f.servers = f.servers[1:]
	return s, nil
}

func (f *fakeAPI) CheckLongPoll(_ context.Context, server vkapi.PollServer, wait int) (*vkapi.LongPollResponse, error) {
	f.polledWith = append(f.polledWith, server)
	f.polledWaits = append(f.polledWaits, wait)
	if len(f.polls) == 0 {
		return nil, errStop
	}
	p := f.polls[0]
	f.polls = f.polls[1:]
	return p.resp, p.err
}

type recordingDispatcher struct {
	seen   []string
	failAt int
	// ts observed by the dispatcher while handling each update
	tsDuring []vkapi.Cursor
	session  *longpoll.Session
}

func (d *recordingDispatcher) Dispatch(_ context.Context, update json.RawMessage) error {
	d.seen = append(d.seen, string(update))
	if d.session != nil {
		d.tsDuring = append(d.tsDuring, d.session.Server().TS)
	}
	if d.failAt > 0 && len(d.seen) == d.failAt {
		return errors.New("handler exploded")
	}
	return nil
}

func failed(code int, ts vkapi.Cursor) pollResult {
	return pollResult{resp: &vkapi.LongPollResponse{Failed: &code, TS: ts}}
}

func batch(ts vkapi.Cursor, updates ...string) pollResult {
	raw := make([]json.RawMessage, len(updates))
	for i, u := range updates {
		raw[i] = json.RawMessage(u)
	}
	return pollResult{resp: &vkapi.LongPollResponse{TS: ts, Updates: raw}}
}

var first = vkapi.PollServer{Server: "https://lp/1", Key: "k1", TS: "10"}

var _ = Describe("Session", func() {
	var (
		ctx        context.Context
		api        *fakeAPI
		dispatcher *recordingDispatcher
		session    *longpoll.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &fakeAPI{servers: []vkapi.PollServer{first}}
		dispatcher = &recordingDispatcher{}
		session = longpoll.NewSession(api, 5, dispatcher)
		dispatcher.session = session
	})

	run := func() error {
		return session.Run(ctx)
	}

	It("initializes on first run and polls with the default wait", func() {
		err := run()
		Expect(errors.Is(err, errStop)).To(BeTrue())
		Expect(api.serverCalls).To(Equal(1))
		Expect(api.polledWith[0]).To(Equal(first))
		Expect(api.polledWaits[0]).To(Equal(longpoll.DefaultWait))
	})

	It("honours a custom wait", func() {
		session = longpoll.NewSession(api, 5, dispatcher, longpoll.WithWait(10))
		_ = session.Run(ctx)
		Expect(api.polledWaits[0]).To(Equal(10))
	})

	It("propagates a rejected group id from Initialize", func() {
		api.serverErr = &vkapi.APIError{Code: 100, Message: "invalid group"}
		err := session.Initialize(ctx)
		Expect(vkapi.IsAPIError(err, 100)).To(BeTrue())
	})

	It("adopts the fresh ts on code 1 without requesting a server", func() {
		api.polls = []pollResult{failed(1, "100")}
		_ = run()

		Expect(api.serverCalls).To(Equal(1))
		Expect(api.polledWith).To(HaveLen(2))
		Expect(api.polledWith[1]).To(Equal(vkapi.PollServer{Server: "https://lp/1", Key: "k1", TS: "100"}))
	})

	It("refreshes only the key on code 2", func() {
		api.servers = append(api.servers, vkapi.PollServer{Server: "https://lp/other", Key: "k2", TS: "999"})
		api.polls = []pollResult{failed(2, "")}
		_ = run()

		Expect(api.serverCalls).To(Equal(2))
		Expect(api.polledWith[1]).To(Equal(vkapi.PollServer{Server: "https://lp/1", Key: "k2", TS: "10"}))
	})

	DescribeTable("replaces the whole triple",
		func(code int) {
			fresh := vkapi.PollServer{Server: "https://lp/2", Key: "k2", TS: "500"}
			api.servers = append(api.servers, fresh)
			api.polls = []pollResult{failed(code, "")}
			_ = run()

			Expect(api.serverCalls).To(Equal(2))
			Expect(api.polledWith[1]).To(Equal(fresh))
		},
		Entry("code 3", 3),
		Entry("code 4", 4),
		Entry("unknown code", 42),
	)

	It("counts failures under the code the server sent", func() {
		before3 := testutil.ToFloat64(metrics.PollFailures.WithLabelValues("3"))
		before42 := testutil.ToFloat64(metrics.PollFailures.WithLabelValues("42"))
		api.servers = append(api.servers, first, first)
		api.polls = []pollResult{failed(3, ""), failed(42, ""), failed(42, "")}
		_ = run()

		Expect(testutil.ToFloat64(metrics.PollFailures.WithLabelValues("3")) - before3).To(Equal(1.0))
		Expect(testutil.ToFloat64(metrics.PollFailures.WithLabelValues("42")) - before42).To(Equal(2.0))
	})

	It("treats code 1 without ts as a lost session", func() {
		fresh := vkapi.PollServer{Server: "https://lp/2", Key: "k2", TS: "500"}
		api.servers = append(api.servers, fresh)
		api.polls = []pollResult{failed(1, "")}
		_ = run()
		Expect(api.polledWith[1]).To(Equal(fresh))
	})

	It("fails when the recovery request itself fails", func() {
		api.polls = []pollResult{failed(3, "")}
		err := run()
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, errStop)).To(BeFalse())
		Expect(api.polledWith).To(HaveLen(1))
	})

	It("dispatches every update in order and advances ts only afterwards", func() {
		api.polls = []pollResult{batch("11", `{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":4}`)}
		_ = run()

		Expect(dispatcher.seen).To(Equal([]string{`{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":4}`}))
		Expect(dispatcher.tsDuring).To(Equal([]vkapi.Cursor{"10", "10", "10", "10"}))
		Expect(api.polledWith[1].TS).To(Equal(vkapi.Cursor("11")))
	})

	It("keeps ts when a dispatch in the middle of the batch fails", func() {
		dispatcher.failAt = 2
		api.polls = []pollResult{batch("11", `{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":4}`)}
		err := run()

		Expect(err).To(MatchError(ContainSubstring("handler exploded")))
		Expect(dispatcher.seen).To(HaveLen(2))
		Expect(session.Server().TS).To(Equal(vkapi.Cursor("10")))

		// Running again re-polls from the same position.
		api.polls = []pollResult{batch("11", `{"n":1}`)}
		dispatcher.failAt = 0
		_ = run()
		Expect(api.polledWith[1].TS).To(Equal(vkapi.Cursor("10")))
	})

	It("propagates transport faults", func() {
		terr := &transport.Error{Op: "GET", URL: "https://lp/1", Err: errors.New("connection reset")}
		api.polls = []pollResult{{err: terr}}
		err := run()

		var got *transport.Error
		Expect(errors.As(err, &got)).To(BeTrue())
		Expect(api.polledWith).To(HaveLen(1))
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		Expect(session.Initialize(ctx)).To(Succeed())
		Expect(session.Run(cctx)).To(MatchError(context.Canceled))
		Expect(api.polledWith).To(BeEmpty())
	})
})

var _ = Describe("Session over HTTP", func() {
	It("lets a long poll outlast the transport's default timeout", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var (
			lpURL string
			polls atomic.Int32
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/groups.getLongPollServer":
				fmt.Fprintf(w, `{"response":{"server":%q,"key":"k","ts":"1"}}`, lpURL)
			case "/lp":
				if polls.Add(1) == 1 {
					time.Sleep(600 * time.Millisecond)
					fmt.Fprint(w, `{"ts":"2","updates":[]}`)
					return
				}
				cancel()
			}
		}))
		defer server.Close()
		lpURL = server.URL + "/lp"

		client, err := vkapi.NewClient(vkapi.ClientConfig{
			Endpoint:    server.URL,
			Credentials: vkapi.Credentials{Token: "tok"},
			Transport:   transport.NewHTTPTransport(200*time.Millisecond, nil),
		})
		Expect(err).NotTo(HaveOccurred())

		session := longpoll.NewSession(client, 5, &recordingDispatcher{}, longpoll.WithWait(1))
		err = session.Run(ctx)

		Expect(err).To(MatchError(context.Canceled))
		Expect(polls.Load()).To(BeNumerically(">=", 2))
		Expect(session.Server().TS).To(Equal(vkapi.Cursor("2")))
	})
})

var _ = DescribeTable("Classify",
	func(resp *vkapi.LongPollResponse, want longpoll.FailureCode) {
		Expect(longpoll.Classify(resp)).To(Equal(want))
	},
	Entry("batch", batch("1").resp, longpoll.FailureNone),
	Entry("outdated cursor", failed(1, "5").resp, longpoll.FailureOutdatedCursor),
	Entry("outdated cursor without ts", failed(1, "").resp, longpoll.FailureSessionLost),
	Entry("key expired", failed(2, "").resp, longpoll.FailureKeyExpired),
	Entry("session lost", failed(3, "").resp, longpoll.FailureSessionLost),
	Entry("unknown", failed(7, "").resp, longpoll.FailureSessionLost),
)
