package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, w *Worker) []Completion {
	t.Helper()

	var completions []Completion
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-w.Completions():
			if !ok {
				return completions
			}
			completions = append(completions, c)
		case <-timeout:
			require.FailNow(t, "timed out waiting for completions")
		}
	}
}

func TestNewWorker(t *testing.T) {
	run := func(_ context.Context, input string) (string, error) {
		return input, nil
	}

	tcs := []struct {
		name      string
		run       RunFunc
		queueSize int
		err       string
	}{
		{
			name:      "nil run func",
			queueSize: 1,
			err:       "invalid run func: should not be nil",
		},
		{
			name: "zero queue size",
			run:  run,
			err:  "invalid queue size: should be a positive number",
		},
		{
			name:      "valid",
			run:       run,
			queueSize: 4,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewWorker(tc.run, tc.queueSize)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				require.Nil(t, w)
			} else {
				require.NoError(t, err)
				require.NotNil(t, w)
			}
		})
	}
}

func TestWorkerRun(t *testing.T) {
	var mut sync.Mutex
	var inputs []string
	run := func(_ context.Context, input string) (string, error) {
		mut.Lock()
		inputs = append(inputs, input)
		mut.Unlock()
		if input == "bad.wav" {
			return "", fmt.Errorf("failed to convert input")
		}
		return input + ".txt", nil
	}

	w, err := NewWorker(run, 3)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	err = w.Start()
	require.EqualError(t, err, "worker has already started")

	var ids []string
	for _, input := range []string{"a.wav", "bad.wav", "b.wav"} {
		id, err := w.Submit(input)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	w.Close()
	w.Close()

	_, err = w.Submit("c.wav")
	require.EqualError(t, err, "worker is closed")

	completions := collect(t, w)
	require.Len(t, completions, 3)
	require.Equal(t, []string{"a.wav", "bad.wav", "b.wav"}, inputs)

	require.Equal(t, ids[0], completions[0].TaskID)
	require.Equal(t, "a.wav.txt", completions[0].Output)
	require.NoError(t, completions[0].Err)

	require.Equal(t, ids[1], completions[1].TaskID)
	require.Empty(t, completions[1].Output)
	require.EqualError(t, completions[1].Err, "failed to convert input")

	require.Equal(t, "b.wav", completions[2].Input)
	require.Equal(t, "b.wav.txt", completions[2].Output)

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "worker did not finish")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	w, err := NewWorker(func(_ context.Context, input string) (string, error) {
		return input, nil
	}, 1)
	require.NoError(t, err)

	_, err = w.Submit("a.wav")
	require.NoError(t, err)
	_, err = w.Submit("b.wav")
	require.EqualError(t, err, "queue is full")

	require.NoError(t, w.Start())
	w.Close()

	completions := collect(t, w)
	require.Len(t, completions, 1)
	require.Equal(t, "a.wav", completions[0].Output)
}

func TestWorkerStop(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		w, err := NewWorker(func(_ context.Context, input string) (string, error) {
			return input, nil
		}, 1)
		require.NoError(t, err)
		require.EqualError(t, w.Stop(context.Background()), "worker has not started")
	})

	t.Run("cancels running and queued tasks", func(t *testing.T) {
		startedCh := make(chan struct{})
		var mut sync.Mutex
		var runs int
		w, err := NewWorker(func(ctx context.Context, _ string) (string, error) {
			mut.Lock()
			runs++
			mut.Unlock()
			close(startedCh)
			<-ctx.Done()
			return "", ctx.Err()
		}, 2)
		require.NoError(t, err)
		require.NoError(t, w.Start())

		_, err = w.Submit("a.wav")
		require.NoError(t, err)
		_, err = w.Submit("b.wav")
		require.NoError(t, err)

		<-startedCh

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))

		completions := collect(t, w)
		require.Len(t, completions, 2)
		require.ErrorIs(t, completions[0].Err, context.Canceled)
		require.ErrorIs(t, completions[1].Err, context.Canceled)
		require.Equal(t, "b.wav", completions[1].Input)

		mut.Lock()
		defer mut.Unlock()
		require.Equal(t, 1, runs)
	})

	t.Run("timeout", func(t *testing.T) {
		startedCh := make(chan struct{})
		releaseCh := make(chan struct{})
		w, err := NewWorker(func(_ context.Context, input string) (string, error) {
			close(startedCh)
			<-releaseCh
			return input, nil
		}, 1)
		require.NoError(t, err)
		require.NoError(t, w.Start())

		_, err = w.Submit("a.wav")
		require.NoError(t, err)
		<-startedCh

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, w.Stop(ctx), context.DeadlineExceeded)

		close(releaseCh)
		completions := collect(t, w)
		require.Len(t, completions, 1)
		require.Equal(t, "a.wav", completions[0].Output)
		require.NoError(t, completions[0].Err)
	})
}
