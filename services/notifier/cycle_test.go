package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lonetwatch/lib/discord"
	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/taskindex"
	"lonetwatch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	channel string
	content string
	embeds  []discord.Embed
}

type fakeSender struct {
	mu sync.Mutex
	// fail every send once `sent` reaches this count, -1 never fails
	failAfter int
	sent      []sentMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{failAfter: -1}
}

func (f *fakeSender) SendMessage(ctx context.Context, channelId, content string, embeds ...discord.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		return errors.New("channel rejected message")
	}
	f.sent = append(f.sent, sentMessage{channel: channelId, content: content, embeds: embeds})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage{}, f.sent...)
}

func staticPlan(plan lonet.Plan) CollectFunc {
	return func(ctx context.Context) (lonet.Plan, error) {
		return plan, nil
	}
}

func testService(t *testing.T, collect CollectFunc, sender Sender) (*Service, *taskindex.Index, string) {
	t.Helper()

	indexFile := filepath.Join(t.TempDir(), "index.json")
	idx, err := taskindex.Open(indexFile)
	require.NoError(t, err)

	svc := NewService(Options{
		Collect:   collect,
		Sender:    sender,
		Index:     idx,
		IndexFile: indexFile,
	})
	return svc, idx, indexFile
}

func TestFirstRunSeedsWithoutNotifying(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	plan := lonet.Plan{Subjects: []lonet.SubjectTasks{
		{Name: "Mathematik", Tasks: []lonet.Task{{Name: "A"}, {Name: "B"}}},
		{Name: "Deutsch", Tasks: []lonet.Task{{Name: "C"}}},
	}}
	sender := newFakeSender()
	svc, idx, indexFile := testService(t, staticPlan(plan), sender)

	err := svc.RunCycle(context.Background(), "chan", false, true)
	require.NoError(t, err)

	require.Empty(t, sender.messages())
	require.Equal(t, 3, idx.Len())

	// every seeded entry carries the pre-existing sentinel
	for _, key := range [][2]string{{"Mathematik", "A"}, {"Mathematik", "B"}, {"Deutsch", "C"}} {
		seen, err := idx.FirstSeenAt(key[0], key[1])
		require.NoError(t, err)
		require.True(t, seen.IsZero())
	}

	_, err = os.Stat(indexFile)
	require.NoError(t, err)
}

func TestNewTasksAreAnnounced(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	sender := newFakeSender()
	svc, idx, _ := testService(t, staticPlan(lonet.Plan{Subjects: []lonet.SubjectTasks{
		{Name: "Mathematik", Tasks: []lonet.Task{
			{Name: "Altlast"},
			{Name: "Neu", Description: "frisch verteilt"},
		}},
	}}), sender)
	idx.Register("Mathematik", "Altlast", true)

	err := svc.RunCycle(context.Background(), "chan", false, false)
	require.NoError(t, err)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "chan", msgs[0].channel)
	require.Len(t, msgs[0].embeds, 1)
	require.Equal(t, "Mathematik: Neu", msgs[0].embeds[0].Title)
	require.True(t, idx.IsKnown("Mathematik", "Neu"))
}

func writeIndexFixture(t *testing.T, entries string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"tasks": [%s]}`, entries)), 0600))
	return path
}

func TestRefreshAnnouncesOldestFirst(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	// registration order on disk deliberately scrambled
	indexFile := writeIndexFixture(t, `
		{"name": "Dritte", "thema": "Physik", "registered": "2021-03-03T10:00:00+01:00"},
		{"name": "Erste", "thema": "Physik", "registered": "2021-03-01T10:00:00+01:00"},
		{"name": "Zweite", "thema": "Chemie", "registered": "2021-03-02T10:00:00+01:00"}
	`)
	idx, err := taskindex.Open(indexFile)
	require.NoError(t, err)

	plan := lonet.Plan{Subjects: []lonet.SubjectTasks{
		{Name: "Physik", Tasks: []lonet.Task{{Name: "Dritte"}, {Name: "Erste"}}},
		{Name: "Chemie", Tasks: []lonet.Task{{Name: "Zweite"}}},
	}}
	sender := newFakeSender()
	svc := NewService(Options{
		Collect:   staticPlan(plan),
		Sender:    sender,
		Index:     idx,
		IndexFile: indexFile,
	})

	err = svc.RunCycle(context.Background(), "chan", true, false)
	require.NoError(t, err)

	msgs := sender.messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "Physik: Erste", msgs[0].embeds[0].Title)
	require.Equal(t, "Chemie: Zweite", msgs[1].embeds[0].Title)
	require.Equal(t, "Physik: Dritte", msgs[2].embeds[0].Title)

	// backfilled announcements show their original registration time
	require.Equal(t, "Added on 01.03.2021 10:00", msgs[0].embeds[0].Footer.Text)
}

func TestRefreshSortsSentinelAsNow(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	indexFile := writeIndexFixture(t, `
		{"name": "Uralt", "thema": "Physik", "registered": null},
		{"name": "Bekannt", "thema": "Physik", "registered": "2021-03-01T10:00:00+01:00"}
	`)
	idx, err := taskindex.Open(indexFile)
	require.NoError(t, err)

	plan := lonet.Plan{Subjects: []lonet.SubjectTasks{
		{Name: "Physik", Tasks: []lonet.Task{{Name: "Uralt"}, {Name: "Bekannt"}}},
	}}
	sender := newFakeSender()
	svc := NewService(Options{
		Collect:   staticPlan(plan),
		Sender:    sender,
		Index:     idx,
		IndexFile: indexFile,
	})

	err = svc.RunCycle(context.Background(), "chan", true, false)
	require.NoError(t, err)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	// the sentinel sorts as "now", so it comes last
	require.Equal(t, "Physik: Bekannt", msgs[0].embeds[0].Title)
	require.Equal(t, "Physik: Uralt", msgs[1].embeds[0].Title)
	require.Equal(t, "Added on unknown", msgs[1].embeds[0].Footer.Text)
}

func TestDeliveryFailureSkipsPersistence(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	plan := lonet.Plan{Subjects: []lonet.SubjectTasks{
		{Name: "Physik", Tasks: []lonet.Task{{Name: "A"}, {Name: "B"}, {Name: "C"}}},
	}}
	sender := newFakeSender()
	sender.failAfter = 1
	svc, idx, indexFile := testService(t, staticPlan(plan), sender)

	err := svc.RunCycle(context.Background(), "chan", false, false)
	require.Error(t, err)
	require.Len(t, sender.messages(), 1)

	// registrations from step 1 survive in memory
	require.Equal(t, 3, idx.Len())
	// but nothing was persisted for this cycle
	_, statErr := os.Stat(indexFile)
	require.True(t, os.IsNotExist(statErr))

	// the next successful cycle persists them without re-announcing
	sender.failAfter = -1
	err = svc.RunCycle(context.Background(), "chan", false, false)
	require.NoError(t, err)
	require.Len(t, sender.messages(), 1)

	loaded, err := taskindex.Open(indexFile)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
}

func TestCollectFailurePropagates(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	collectErr := errors.New("portal unreachable")
	sender := newFakeSender()
	svc, _, indexFile := testService(t, func(ctx context.Context) (lonet.Plan, error) {
		return lonet.Plan{}, collectErr
	}, sender)

	err := svc.RunCycle(context.Background(), "chan", false, false)
	require.ErrorIs(t, err, collectErr)
	require.Empty(t, sender.messages())
	_, statErr := os.Stat(indexFile)
	require.True(t, os.IsNotExist(statErr))
}

func TestActivateOnce(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:notifier")
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := newFakeSender()
	svc, _, _ := testService(t, staticPlan(lonet.Plan{}), sender)
	svc.interval = time.Hour

	svc.HandleMessage(ctx, discord.Message{ChannelID: "chan", Content: "lonet activate"})
	svc.HandleMessage(ctx, discord.Message{ChannelID: "chan", Content: "lonet activate"})
	svc.HandleMessage(ctx, discord.Message{ChannelID: "chan", Content: "unrelated chatter"})

	var replies []string
	for _, msg := range sender.messages() {
		if msg.content != "" {
			replies = append(replies, msg.content)
		}
	}
	require.Equal(t, []string{"Bot was started", "Bot is already started :thinking:"}, replies)
}
