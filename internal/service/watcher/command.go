package watcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
	"github.com/oshokin/tsundere-client/internal/logger"
	"github.com/oshokin/tsundere-client/internal/service/directory"
)

// DefaultPollInterval is used when Options.PollInterval is not positive.
const DefaultPollInterval = 5 * time.Second

// Options controls the watcher polling behavior.
type Options struct {
	// ConfigPath is the settings file, empty means tsundere.properties in the working directory.
	ConfigPath string
	// PollInterval is the delay between two polls.
	PollInterval time.Duration
	// Timeout overrides api.timeout from the settings file when positive.
	Timeout time.Duration
	// Ignore lists users that are never reported, compared case-insensitively.
	Ignore []string
	// Events enables polling api.events.url after each successful users poll.
	Events bool
	// OnChange, when set, receives every non-empty change after it is logged.
	OnChange func(domain.Change)
	// OnEvents, when set, receives the events not seen by the previous poll.
	OnEvents func([]domain.Event)
	// OnStatus, when set, is called whenever the directory goes online or offline.
	OnStatus func(online bool)
}

// fetcher is the part of the directory client the watcher needs.
type fetcher interface {
	Fetch(ctx context.Context) (*domain.Result, error)
	FetchEvents(ctx context.Context) ([]domain.Event, error)
}

// Run polls the directory until ctx is canceled. It returns nil on cancellation.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tsundere-watch")

	// The client reloads settings on every poll, so edits apply without a restart.
	client := directory.New(
		directory.WithConfigPath(opts.ConfigPath),
		directory.WithCallTimeout(opts.Timeout),
	)

	return watch(ctx, client, opts)
}

func watch(ctx context.Context, client fetcher, opts *Options) error {
	// Fall back to the default interval when none is given.
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger.InfoKV(
		ctx,
		"Watching directory",
		"interval", interval.String(),
		"ignored", len(opts.Ignore),
		"events", opts.Events,
	)

	state := &snapshot{
		opts:       opts,
		seenEvents: make(map[string]struct{}),
	}

	// The first poll happens right away, the ticker only drives the following ones.
	state.poll(ctx, client)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Main polling loop until context cancellation.
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-ticker.C:
			state.poll(ctx, client)
		}
	}
}

// snapshot remembers what the previous polls observed.
type snapshot struct {
	opts *Options
	// users is the filtered list of the last successful users poll.
	users       []string
	initialized bool
	// online is nil until the first poll reached or failed to reach the service.
	online *bool
	// seenEvents holds the keys of the events returned by the last events poll.
	seenEvents map[string]struct{}
}

func (s *snapshot) poll(ctx context.Context, client fetcher) {
	// Request the current users.
	result, err := client.Fetch(ctx)
	if err != nil {
		// Cancellation is a shutdown, not an outage.
		if ctx.Err() != nil {
			return
		}

		logger.WarnKV(ctx, "Poll failed, keeping previous snapshot", "error", err)

		// A broken settings file says nothing about the service itself.
		if !errors.Is(err, domain.ErrConfigLoad) {
			s.setOnline(ctx, false)
		}

		return
	}

	s.setOnline(ctx, true)
	s.updateUsers(ctx, result)

	if s.opts.Events {
		s.pollEvents(ctx, client)
	}
}

// setOnline logs and reports the first known status and every later flip.
func (s *snapshot) setOnline(ctx context.Context, online bool) {
	if s.online != nil && *s.online == online {
		return
	}

	s.online = &online

	if online {
		logger.Info(ctx, "Directory online")
	} else {
		logger.Info(ctx, "Directory offline")
	}

	if s.opts.OnStatus != nil {
		s.opts.OnStatus(online)
	}
}

// updateUsers diffs the fetched users against the previous snapshot.
func (s *snapshot) updateUsers(ctx context.Context, result *domain.Result) {
	// Drop duplicates and ignored users before comparing.
	users := lo.Reject(lo.Uniq(result.Users), func(user string, _ int) bool {
		return s.ignored(user)
	})

	// The first snapshot is a baseline, nobody joined yet.
	if !s.initialized {
		s.users = users
		s.initialized = true

		logger.InfoKV(ctx, "Initial users", "users", users, "client", result.ClientIdentity)

		return
	}

	change := Diff(s.users, users)
	s.users = users

	if change.IsEmpty() {
		logger.DebugKV(ctx, "No changes", "count", len(users))

		return
	}

	for _, user := range change.Joined {
		logger.InfoKV(ctx, "User connected", "user", user)
	}

	for _, user := range change.Left {
		logger.InfoKV(ctx, "User disconnected", "user", user)
	}

	if s.opts.OnChange != nil {
		s.opts.OnChange(change)
	}
}

// pollEvents reports the repository events that were not in the previous window.
func (s *snapshot) pollEvents(ctx context.Context, client fetcher) {
	events, err := client.FetchEvents(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.WarnKV(ctx, "Events poll failed", "error", err)
		}

		return
	}

	// The server returns a sliding window, so the same event shows up in several polls.
	current := make(map[string]struct{}, len(events))
	fresh := make([]domain.Event, 0, len(events))

	for _, event := range events {
		key := event.Key()
		current[key] = struct{}{}

		if _, seen := s.seenEvents[key]; seen {
			continue
		}

		if user := event.User(); user != "" && s.ignored(user) {
			continue
		}

		fresh = append(fresh, event)
	}

	s.seenEvents = current

	if len(fresh) == 0 {
		return
	}

	domain.SortEvents(fresh)

	for _, event := range fresh {
		logger.InfoKV(
			ctx,
			"Repository event",
			"timestamp", event.Timestamp.Format(domain.EventTimeLayout),
			"message", event.Message,
		)
	}

	if s.opts.OnEvents != nil {
		s.opts.OnEvents(fresh)
	}
}

// ignored reports whether user is on the ignore list, ignoring case.
func (s *snapshot) ignored(user string) bool {
	return lo.ContainsBy(s.opts.Ignore, func(name string) bool {
		return strings.EqualFold(name, user)
	})
}

// Diff returns who is only in next (joined) and who is only in prev (left).
// Order follows the input slices, duplicates are collapsed.
func Diff(prev, next []string) domain.Change {
	left, joined := lo.Difference(lo.Uniq(prev), lo.Uniq(next))

	return domain.Change{
		Joined: joined,
		Left:   left,
	}
}
