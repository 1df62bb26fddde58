// Package digest posts a scheduled stats summary to every admin.
package digest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/relay"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Service struct {
	cron     *cron.Cron
	schedule string

	store  storage.Store
	admins *relay.AdminRegistry
	msgr   relay.Messenger
	log    logx.Logger
}

func New(store storage.Store, admins *relay.AdminRegistry, msgr relay.Messenger, log logx.Logger, schedule string) *Service {
	if schedule == "" {
		schedule = "0 9 * * *"
	}
	return &Service{
		cron:     cron.New(),
		schedule: schedule,
		store:    store,
		admins:   admins,
		msgr:     msgr,
		log:      log.With(logx.String("comp", "digest")),
	}
}

func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("digest scheduled", logx.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler and waits for an in-flight run, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		s.log.Warn("digest stats failed", logx.Err(err))
		return
	}
	active, err := s.store.CountActiveUsers(ctx)
	if err != nil {
		s.log.Warn("digest stats failed", logx.Err(err))
		return
	}
	msgs, err := s.store.CountMessages(ctx)
	if err != nil {
		s.log.Warn("digest stats failed", logx.Err(err))
		return
	}

	text := relay.DashboardText(total, active, msgs, s.admins.Count())
	opt := &kit.SendOptions{ParseMode: "HTML"}
	for _, adminID := range s.admins.List() {
		if _, err := s.msgr.SendText(ctx, kit.ChatTarget{ChatID: adminID}, text, opt); err != nil {
			s.log.Warn("digest delivery failed", logx.Int64("admin_id", adminID), logx.Err(err))
		}
	}
}
