package notifier

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func physikPlan(tasks ...string) lonet.Plan {
	subject := lonet.SubjectTasks{Name: "Physik"}
	for _, name := range tasks {
		subject.Tasks = append(subject.Tasks, lonet.Task{Name: name})
	}
	return lonet.Plan{Subjects: []lonet.SubjectTasks{subject}}
}

func TestDaemonReportsFailureOnceAndRecovers(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// first cycle fails, the second seeds, later ones carry a new task
	var calls atomic.Int64
	collect := func(ctx context.Context) (lonet.Plan, error) {
		switch calls.Add(1) {
		case 1:
			return lonet.Plan{}, errors.New("portal unreachable")
		case 2:
			return physikPlan("Alt"), nil
		default:
			return physikPlan("Alt", "Neu"), nil
		}
	}

	sender := newFakeSender()
	svc, _, _ := testService(t, collect, sender)
	svc.interval = time.Millisecond * 10

	require.True(t, svc.Activate(ctx, "chan", false))

	require.Eventually(t, func() bool {
		return len(sender.messages()) >= 2
	}, time.Second*5, time.Millisecond*10)
	cancel()

	msgs := sender.messages()
	require.Equal(t, "An error occurred: collect plan: portal unreachable", msgs[0].content)
	require.Empty(t, msgs[0].embeds)

	// the failed cycle produced exactly one channel message
	errorCount := 0
	for _, msg := range msgs {
		if strings.HasPrefix(msg.content, "An error occurred") {
			errorCount++
		}
	}
	require.Equal(t, 1, errorCount)

	// a failed first cycle stays a first run: "Alt" was seeded silently
	// and only "Neu" ever gets announced
	require.Equal(t, "", msgs[1].content)
	require.Len(t, msgs[1].embeds, 1)
	require.Equal(t, "Physik: Neu", msgs[1].embeds[0].Title)
}
