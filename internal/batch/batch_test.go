package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/fetcher"
	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/progress"
	pubmemory "github.com/JakeFAU/logohunter/internal/publisher/memory"
	"github.com/JakeFAU/logohunter/internal/scoring"
	"github.com/JakeFAU/logohunter/internal/storage"
	"github.com/JakeFAU/logohunter/internal/storage/memory"
	"github.com/JakeFAU/logohunter/internal/validation"
)

type mockHunter struct {
	mock.Mock
}

func (m *mockHunter) Hunt(ctx context.Context, domain string, opts hunter.Options, emitter progress.Emitter) (*hunter.Logo, error) {
	args := m.Called(ctx, domain, opts, emitter)
	logo, _ := args.Get(0).(*hunter.Logo)
	return logo, args.Error(1)
}

type fixedHasher struct{}

func (fixedHasher) Hash(_ []byte) (string, error) {
	return "abc", nil
}

func collect(results *[]Result) func(Result) {
	return func(r Result) {
		*results = append(*results, r)
	}
}

func TestReadJobs(t *testing.T) {
	t.Parallel()

	input := "# domains\nexample.com\n\n  shop.example.org  # trailing\n#skipped.com\nhttps://news.example.net\n"
	jobs, err := ReadJobs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Job{
		{Domain: "example.com", Line: 2},
		{Domain: "shop.example.org", Line: 4},
		{Domain: "https://news.example.net", Line: 6},
	}, jobs)
}

func TestRunnerReportsEveryDomain(t *testing.T) {
	t.Parallel()

	opts := hunter.Options{Format: candidate.FormatPNG, Width: 64, Height: 64}
	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "found.com", opts, nil).Return(&hunter.Logo{
		Domain: "found.com",
		Data:   []byte("png"),
		Format: candidate.FormatPNG,
		Width:  64,
		Height: 64,
		Selection: &validation.Selection{
			FinalURL:       "https://found.com/apple-touch-icon.png",
			ValidatedScore: 1100,
		},
		Attempts: []validation.Attempt{{URL: "https://found.com/apple-touch-icon.png"}},
	}, nil)
	h.On("Hunt", mock.Anything, "empty.com", opts, nil).Return(nil, nil)
	h.On("Hunt", mock.Anything, "broken", opts, nil).Return(nil, hunter.ErrInvalidDomain)

	blobs := memory.NewBlobStore()
	archive := storage.NewArchive(blobs, fixedHasher{}, "logos")
	runner := New(h, archive, nil, Config{Workers: 2}, nil)

	var results []Result
	jobs := []Job{{Domain: "found.com", Line: 1}, {Domain: "empty.com", Line: 2}, {Domain: "broken", Line: 3}}
	require.NoError(t, runner.Run(context.Background(), jobs, opts, collect(&results)))
	require.Len(t, results, 3)
	h.AssertExpectations(t)

	byDomain := map[string]Result{}
	for _, r := range results {
		byDomain[r.Domain] = r
	}
	found := byDomain["found.com"]
	assert.Equal(t, OutcomeLogo, found.Outcome)
	assert.Equal(t, "https://found.com/apple-touch-icon.png", found.URL)
	assert.Equal(t, 1100, found.Score)
	assert.Equal(t, 1, found.Attempts)
	assert.Equal(t, candidate.FormatPNG, found.Format)
	assert.NotEmpty(t, found.Stored)
	assert.Len(t, blobs.Keys(), 1)

	assert.Equal(t, OutcomeNoLogo, byDomain["empty.com"].Outcome)
	assert.Empty(t, byDomain["empty.com"].Stored)

	broken := byDomain["broken"]
	assert.Equal(t, OutcomeError, broken.Outcome)
	assert.Equal(t, 3, broken.Line)
	assert.Contains(t, broken.Error, hunter.ErrInvalidDomain.Error())
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, string, []byte, candidate.Format) (storage.Object, error) {
	return storage.Object{}, errors.New("bucket unavailable")
}

func TestRunnerKeepsLogoWhenSaveFails(t *testing.T) {
	t.Parallel()

	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "found.com", mock.Anything, mock.Anything).Return(&hunter.Logo{
		Domain: "found.com",
		Data:   []byte("<svg/>"),
		Format: candidate.FormatSVG,
	}, nil)

	var results []Result
	runner := New(h, failingSaver{}, nil, Config{Workers: 1}, nil)
	require.NoError(t, runner.Run(context.Background(), []Job{{Domain: "found.com"}}, hunter.Options{}, collect(&results)))
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeLogo, results[0].Outcome)
	assert.Equal(t, "bucket unavailable", results[0].Error)
	assert.Empty(t, results[0].Stored)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic not found")
}

func TestRunnerPublishesResults(t *testing.T) {
	t.Parallel()

	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "empty.com", mock.Anything, mock.Anything).Return(nil, nil)

	pub := pubmemory.New()
	runner := New(h, nil, nil, Config{Workers: 1}, nil, WithPublisher(pub, "logo-results"))
	require.NoError(t, runner.Run(context.Background(), []Job{{Domain: "empty.com", Line: 7}}, hunter.Options{}, nil))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "logo-results", msgs[0].Topic)
	var got Result
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "empty.com", got.Domain)
	assert.Equal(t, 7, got.Line)
	assert.Equal(t, OutcomeNoLogo, got.Outcome)
}

func TestRunnerReportsWhenPublishFails(t *testing.T) {
	t.Parallel()

	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "empty.com", mock.Anything, mock.Anything).Return(nil, nil)

	var results []Result
	runner := New(h, nil, nil, Config{Workers: 1}, nil, WithPublisher(failingPublisher{}, "logo-results"))
	require.NoError(t, runner.Run(context.Background(), []Job{{Domain: "empty.com"}}, hunter.Options{}, collect(&results)))
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeNoLogo, results[0].Outcome)
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) Record(_ context.Context, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func TestRunnerRecordsResultsWithRunID(t *testing.T) {
	t.Parallel()

	h := &mockHunter{}
	h.On("Hunt", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	rec := &recorder{}
	var results []Result
	runner := New(h, nil, nil, Config{Workers: 2}, nil, WithRecorder(rec))
	jobs := []Job{{Domain: "a.com"}, {Domain: "b.com"}}
	require.NoError(t, runner.Run(context.Background(), jobs, hunter.Options{}, collect(&results)))

	require.Len(t, rec.results, 2)
	require.Len(t, results, 2)
	runID := rec.results[0].RunID
	require.NotEmpty(t, runID)
	for _, r := range append(rec.results, results...) {
		assert.Equal(t, runID, r.RunID)
	}
}

func TestRunnerAppliesDomainTimeout(t *testing.T) {
	t.Parallel()

	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "slow.com", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, fmt.Errorf("hunt slow.com: %w", context.DeadlineExceeded))

	var results []Result
	runner := New(h, nil, nil, Config{Workers: 1, DomainTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, runner.Run(context.Background(), []Job{{Domain: "slow.com"}}, hunter.Options{}, collect(&results)))
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "deadline exceeded")
}

func TestRunnerDomainTimeoutWithPipeline(t *testing.T) {
	t.Parallel()

	reg, err := scoring.LoadDefault()
	require.NoError(t, err)
	stalled := fetcher.Func(func(ctx context.Context, url string) (fetcher.Response, error) {
		<-ctx.Done()
		return fetcher.Response{}, fetcher.Classify(url, 0, ctx.Err())
	})
	cfg := hunter.DefaultConfig()
	cfg.HomepageAttempts = 1
	h, err := hunter.New(hunter.Deps{Fetcher: stalled, Engine: scoring.NewEngine(reg)}, cfg)
	require.NoError(t, err)

	rec := &recorder{}
	var results []Result
	runner := New(h, nil, nil, Config{Workers: 1, DomainTimeout: 30 * time.Millisecond}, nil, WithRecorder(rec))
	require.NoError(t, runner.Run(context.Background(), []Job{{Domain: "slow.com"}}, hunter.Options{}, collect(&results)))

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Error, "deadline exceeded")
	require.Len(t, rec.results, 1)
	assert.Equal(t, OutcomeError, rec.results[0].Outcome)
}

func TestRunnerDropsJobsCanceledMidHunt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	h := &mockHunter{}
	h.On("Hunt", mock.Anything, "a.com", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, fmt.Errorf("hunt a.com: %w", context.Canceled))

	var results []Result
	runner := New(h, nil, nil, Config{Workers: 1}, nil)
	err := runner.Run(ctx, []Job{{Domain: "a.com"}}, hunter.Options{}, collect(&results))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	h := &mockHunter{}
	var once sync.Once
	h.On("Hunt", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { once.Do(cancel) }).
		Return(nil, nil)

	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = Job{Domain: "example.com"}
	}
	runner := New(h, nil, nil, Config{Workers: 1, QueueSize: 1}, nil)
	err := runner.Run(ctx, jobs, hunter.Options{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Domain: "a.com"}))
	q.Close()
	q.Close()

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.com", job.Domain)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
