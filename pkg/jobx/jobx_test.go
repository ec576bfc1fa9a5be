package jobx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/jobx/jobxmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

func startClient(t *testing.T, c *jobx.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newClient(q jobx.Queue) *jobx.Client {
	return jobx.NewClient(q,
		jobx.WithConcurrency(1),
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithDequeueTimeout(10*time.Millisecond),
		jobx.WithDefaultRetryDelay(0),
		jobx.WithShutdownTimeout(time.Second),
	)
}

func TestPublishRunsHandler(t *testing.T) {
	q := jobxmem.New()
	c := newClient(q)

	got := make(chan string, 1)
	c.Register("greet", func(_ context.Context, job *jobx.JobInfo) error {
		var g greeting
		if err := job.Decode(&g); err != nil {
			return err
		}
		got <- g.Name
		return nil
	})
	startClient(t, c)

	id, err := c.Publish(context.Background(), "greet", greeting{Name: "ada"})
	require.NoError(t, err)

	select {
	case name := <-got:
		assert.Equal(t, "ada", name)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	require.Eventually(t, func() bool {
		info, err := c.GetJob(context.Background(), id)
		return err == nil && info.Status == jobx.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFailingHandlerIsRetriedThenFailed(t *testing.T) {
	q := jobxmem.New()
	c := newClient(q)

	var calls atomic.Int32
	c.Register("flaky", func(context.Context, *jobx.JobInfo) error {
		calls.Add(1)
		return errors.New("nope")
	})
	startClient(t, c)

	job, err := jobx.NewJob("flaky", map[string]string{})
	require.NoError(t, err)
	job.MaxRetries = 2
	id, err := c.Enqueue(context.Background(), job)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := c.GetJob(context.Background(), id)
		return err == nil && info.Status == jobx.JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPanickingHandlerFailsJob(t *testing.T) {
	q := jobxmem.New()
	c := newClient(q)

	c.Register("panics", func(context.Context, *jobx.JobInfo) error { panic("bad") })
	startClient(t, c)

	job, _ := jobx.NewJob("panics", nil)
	job.MaxRetries = 1
	id, err := c.Enqueue(context.Background(), job)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := c.GetJob(context.Background(), id)
		return err == nil && info.Status == jobx.JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEnqueueRejectsEmptyType(t *testing.T) {
	c := newClient(jobxmem.New())
	_, err := c.Enqueue(context.Background(), jobx.Job{})
	assert.Error(t, err)
}
