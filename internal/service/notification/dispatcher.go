package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"governance-backend/internal/config"
	"governance-backend/internal/repository/notification"
	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"
	notificationPkg "governance-backend/pkg/notification"
)

// TelegramClient Telegram发送
type TelegramClient interface {
	SendMessage(ctx context.Context, botToken, chatID, message string) error
}

// WebhookClient Lark/Feishu发送
type WebhookClient interface {
	SendMessage(ctx context.Context, webhookURL, secret, message string) error
}

// EmailClient 邮件发送
type EmailClient interface {
	SendAlert(to, subject string, data notificationPkg.AlertEmail) error
}

// AdminLister 告警接收者来源
type AdminLister interface {
	GetAllAdmins() []types.Admin
}

// Observer 发送结果计数
type Observer interface {
	ObserveNotification(channel types.NotificationChannel, status string)
}

// Senders 各通道发送器，Email为nil时不发邮件
type Senders struct {
	Telegram TelegramClient
	Lark     WebhookClient
	Feishu   WebhookClient
	Email    EmailClient
}

// NewSenders 按配置创建真实发送器
func NewSenders(cfg *config.NotificationConfig) Senders {
	s := Senders{
		Telegram: notificationPkg.NewTelegramSender(cfg.HTTPTimeout),
		Lark:     notificationPkg.NewLarkSender(cfg.HTTPTimeout),
		Feishu:   notificationPkg.NewFeishuSender(cfg.HTTPTimeout),
	}
	if cfg.Email.Enabled {
		s.Email = notificationPkg.NewEmailSender(&cfg.Email)
	}
	return s
}

// Dispatcher 订阅治理事件，异步向管理员的通知配置推送告警
type Dispatcher struct {
	repo       notification.NotificationRepository
	admins     AdminLister
	senders    Senders
	recipients []string
	observer   Observer

	queue    chan []types.Event
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher 创建告警分发器
func NewDispatcher(repo notification.NotificationRepository, admins AdminLister, senders Senders, cfg *config.NotificationConfig, observer Observer) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{
		repo:       repo,
		admins:     admins,
		senders:    senders,
		recipients: cfg.Email.Recipients,
		observer:   observer,
		queue:      make(chan []types.Event, size),
		stop:       make(chan struct{}),
	}
}

// Start 启动后台发送协程
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
	logger.Info("Dispatcher: started", "queue_size", cap(d.queue))
}

// Stop 停止并等待发送协程退出，未处理的批次丢弃
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
	if n := len(d.queue); n > 0 {
		logger.Warn("Dispatcher: dropped queued batches on stop", "batches", n)
	}
}

// HandleEvents 治理服务订阅回调，不阻塞提交方
func (d *Dispatcher) HandleEvents(events []types.Event) {
	var alerts []types.Event
	for _, e := range events {
		if IsAlertEvent(e.Type) {
			alerts = append(alerts, e)
		}
	}
	if len(alerts) == 0 {
		return
	}
	select {
	case d.queue <- alerts:
	default:
		logger.Warn("Dispatcher: queue full, dropping alerts", "events", len(alerts), "first_sequence", alerts[0].Sequence)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case batch := <-d.queue:
			for _, e := range batch {
				d.dispatch(ctx, e)
			}
		}
	}
}

// dispatch 向所有在任管理员的启用配置发送一条事件
func (d *Dispatcher) dispatch(ctx context.Context, e types.Event) {
	message := FormatMessage(e)
	var sent int
	for _, admin := range d.admins.GetAllAdmins() {
		if !admin.IsActive {
			continue
		}
		userAddress := crypto.NormalizeAddress(admin.Address.Hex())
		configs, err := d.repo.GetUserActiveNotificationConfigs(ctx, userAddress)
		if err != nil {
			logger.Error("Dispatch Error: ", err, "user_address", userAddress, "event_sequence", e.Sequence)
			continue
		}
		for _, c := range configs.TelegramConfigs {
			cfg := c
			sent += d.deliver(ctx, e, types.ChannelTelegram, cfg.ID, userAddress, "", func() error {
				return d.senders.Telegram.SendMessage(ctx, cfg.BotToken, cfg.ChatID, message)
			})
		}
		for _, c := range configs.LarkConfigs {
			cfg := c
			sent += d.deliver(ctx, e, types.ChannelLark, cfg.ID, userAddress, "", func() error {
				return d.senders.Lark.SendMessage(ctx, cfg.WebhookURL, cfg.Secret, message)
			})
		}
		for _, c := range configs.FeishuConfigs {
			cfg := c
			sent += d.deliver(ctx, e, types.ChannelFeishu, cfg.ID, userAddress, "", func() error {
				return d.senders.Feishu.SendMessage(ctx, cfg.WebhookURL, cfg.Secret, message)
			})
		}
	}

	if d.senders.Email != nil && IsCritical(e.Type) {
		subject := fmt.Sprintf("Governance Alert - %s", Title(e))
		data := notificationPkg.AlertEmail{
			Title:     Title(e),
			Body:      message,
			Emergency: e.Type == types.EventEmergencyModeToggled,
		}
		// 收件人按配置顺序编号作为去重键
		for i, to := range d.recipients {
			rcpt := to
			sent += d.deliver(ctx, e, types.ChannelEmail, uint(i+1), "", rcpt, func() error {
				return d.senders.Email.SendAlert(rcpt, subject, data)
			})
		}
	}
	logger.Info("Dispatch: ", "event_sequence", e.Sequence, "event_type", e.Type, "sent", sent)
}

// deliver 去重、发送并记录日志，返回成功发送数
func (d *Dispatcher) deliver(ctx context.Context, e types.Event, channel types.NotificationChannel, configID uint, userAddress, recipient string, send func() error) int {
	exists, err := d.repo.CheckNotificationLogExists(ctx, channel, configID, e.Sequence)
	if err != nil {
		return 0
	}
	if exists {
		logger.Debug("Dispatch: already sent", "channel", channel, "config_id", configID, "event_sequence", e.Sequence)
		return 0
	}

	status := types.SendStatusSuccess
	var errMsg string
	if err := send(); err != nil {
		status = types.SendStatusFailed
		errMsg = err.Error()
		logger.Error("Deliver Error: ", err, "channel", channel, "config_id", configID, "event_sequence", e.Sequence)
	}
	if d.observer != nil {
		d.observer.ObserveNotification(channel, status)
	}

	log := &types.NotificationLog{
		UserAddress:   userAddress,
		Channel:       channel,
		ConfigID:      configID,
		Recipient:     recipient,
		EventSequence: e.Sequence,
		EventType:     e.Type,
		ActionID:      e.ActionID,
		Subject:       e.Subject.Hex(),
		SendStatus:    status,
		ErrorMessage:  errMsg,
		SentAt:        time.Now(),
	}
	if err := d.repo.CreateNotificationLog(ctx, log); err != nil {
		logger.Error("Deliver Error: ", err, "message", "failed to record notification log", "channel", channel)
	}
	if status == types.SendStatusSuccess {
		return 1
	}
	return 0
}
