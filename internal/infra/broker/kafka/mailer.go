package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"
)

// MailJob is the payload the send-email function enqueues.
type MailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailSender delivers one mail job. The default implementation only logs;
// a real SMTP/provider sender plugs in behind the same interface.
type MailSender interface {
	Send(ctx context.Context, job MailJob) error
}

// LogSender records the job instead of delivering it. Good enough for
// local runs and staging.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, job MailJob) error {
	if s.Logger != nil {
		s.Logger.Info("mail delivered", "to", job.To, "subject", job.Subject)
	}
	return nil
}

// MailWorker consumes the mail topic as a consumer group and hands each
// job to the sender. Failed jobs stay unmarked so the group redelivers.
type MailWorker struct {
	group  sarama.ConsumerGroup
	topic  string
	sender MailSender
	logger *slog.Logger
}

func NewMailWorker(brokers []string, groupID, topic string, cfg *sarama.Config, sender MailSender, logger *slog.Logger) (*MailWorker, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &MailWorker{group: group, topic: topic, sender: sender, logger: logger}, nil
}

func (w *MailWorker) Run(ctx context.Context) error {
	for {
		if err := w.group.Consume(ctx, []string{w.topic}, mailClaimHandler{sender: w.sender, logger: w.logger}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (w *MailWorker) Close() error {
	return w.group.Close()
}

type mailClaimHandler struct {
	sender MailSender
	logger *slog.Logger
}

func (mailClaimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (mailClaimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h mailClaimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var job MailJob
		if err := json.Unmarshal(message.Value, &job); err != nil {
			if h.logger != nil {
				h.logger.Error("mail job decode failed", "error", err, "offset", message.Offset)
			}
			sess.MarkMessage(message, "")
			continue
		}
		if err := h.sender.Send(sess.Context(), job); err != nil {
			if h.logger != nil {
				h.logger.Error("mail delivery failed", "error", err, "to", job.To)
			}
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}
