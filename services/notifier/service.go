package notifier

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lonetwatch/lib/discord"
	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/taskindex"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lonetwatch.services.notifier")

// Sender delivers structured messages to a chat channel.
type Sender interface {
	SendMessage(ctx context.Context, channelId, content string, embeds ...discord.Embed) error
}

// CollectFunc produces a fresh plan snapshot, performing login and the
// full scrape.
type CollectFunc func(ctx context.Context) (lonet.Plan, error)

type Options struct {
	Collect   CollectFunc
	Sender    Sender
	Index     *taskindex.Index
	IndexFile string
	// defaults to 10 minutes
	Interval time.Duration
}

// Service owns the reconciliation loop: it compares freshly scraped
// plans against the index, announces the delta, and persists index
// state. It starts Inactive and transitions to Active exactly once,
// triggered by a chat command.
type Service struct {
	collect   CollectFunc
	sender    Sender
	index     *taskindex.Index
	indexFile string
	interval  time.Duration

	mu     sync.Mutex
	active bool
}

func NewService(opts Options) *Service {
	interval := opts.Interval
	if interval == 0 {
		interval = time.Minute * 10
	}
	return &Service{
		collect:   opts.Collect,
		sender:    opts.Sender,
		index:     opts.Index,
		indexFile: opts.IndexFile,
		interval:  interval,
	}
}

const activateCommand = "lonet activate"

// HandleMessage feeds one inbound chat message into the activation
// state machine.
func (s *Service) HandleMessage(ctx context.Context, msg discord.Message) {
	if !strings.HasPrefix(msg.Content, activateCommand) {
		return
	}
	refreshOnFirstRun := strings.Contains(msg.Content, "refresh")

	reply := "Bot was started"
	if !s.Activate(ctx, msg.ChannelID, refreshOnFirstRun) {
		reply = "Bot is already started :thinking:"
	}
	err := s.sender.SendMessage(ctx, msg.ChannelID, reply)
	if err != nil {
		slog.WarnContext(ctx, "failed to send activation reply", "err", err)
	}
}

// Activate transitions Inactive → Active and starts the watch daemon
// against the given channel. Re-activating is a no-op that returns
// false. Once active, the service never deactivates itself.
func (s *Service) Activate(ctx context.Context, channelId string, refreshOnFirstRun bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true

	go s.watchDaemon(ctx, channelId, refreshOnFirstRun)
	return true
}
