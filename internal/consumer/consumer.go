// Package consumer drives the five collaborating components (decoder,
// gate, resolver, privacy filter, sink writer) from the bus.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/regionsync/inbound-sync/internal/config"
	"github.com/regionsync/inbound-sync/internal/envelope"
	"github.com/regionsync/inbound-sync/internal/metrics"
	"github.com/regionsync/inbound-sync/internal/policy"
	"github.com/regionsync/inbound-sync/internal/privacy"
	"github.com/regionsync/inbound-sync/internal/resolver"
	"github.com/regionsync/inbound-sync/internal/tracing"
)

// Sink is the subset of the sink writer a consumer needs: read local
// state, delete, and upsert. Satisfied by *sink.Writer; an interface here
// keeps the loop testable without a real database.
type Sink interface {
	resolver.LocalReader
	Delete(ctx context.Context, table string, primaryKey any) error
	Upsert(ctx context.Context, table string, columns []string, values []any) error
}

// Loop drives a single topic-partition assignment: pull, decode, gate,
// resolve, filter, write, record — strictly in partition order.
type Loop struct {
	region  config.Region
	reader  *kafka.Reader
	sink    Sink
	metrics *metrics.Store
	topic   string
}

// ReaderConfig mirrors the fields of kafka.ReaderConfig this loop cares
// about, decoupling callers from the concrete library type.
type ReaderConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// NewReader constructs a kafka.Reader subscribed to one topic, tailing
// live traffic only (fromBeginning=false) rather than replaying history.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		Dialer:      &kafka.Dialer{ClientID: cfg.ClientID},
	})
}

// NewLoop constructs a Loop for one topic.
func NewLoop(region config.Region, reader *kafka.Reader, s Sink, m *metrics.Store, topic string) *Loop {
	return &Loop{region: region, reader: reader, sink: s, metrics: m, topic: topic}
}

// Run pulls messages until ctx is canceled. Offsets are committed only
// after a message has been fully handled — accepted-and-written, or
// deliberately skipped — and a poison message (a handler panic or an
// unrecoverable error) is logged and treated as handled so the loop never
// wedges.
func (l *Loop) Run(ctx context.Context) error {
	logrus.WithField("topic", l.topic).Info("consumer loop starting")

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		l.handle(ctx, msg)

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			logrus.WithError(err).WithField("topic", l.topic).Error("failed to commit offset")
		}
	}
}

// handle never returns an error: every failure mode is logged and the
// message is treated as handled.
func (l *Loop) handle(ctx context.Context, msg kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).WithField("topic", l.topic).
				Error("consumer handler panicked; treating message as handled")
		}
	}()

	receivedAt := time.Now()

	spanCtx, span := tracing.Tracer.Start(ctx, "consumer.handle")
	defer span.End()

	change, err := envelope.Decode(msg.Topic, msg.Key, msg.Value)
	if err != nil {
		var skip *envelope.SkipError
		if errors.As(err, &skip) {
			logrus.WithFields(logrus.Fields{"topic": msg.Topic, "reason": skip.Reason}).Debug("decode skip")
		} else {
			logrus.WithError(err).WithField("topic", msg.Topic).Error("decode error")
		}
		return
	}

	logFields := logrus.Fields{
		"table":  change.Table,
		"id":     change.PrimaryKey,
		"source": change.SyncOrigin,
		"op":     change.Op,
	}

	decision := policy.Evaluate(l.region, change)
	if !decision.Accepted {
		logrus.WithFields(logFields).WithField("reason", decision.Reason).Debug("policy rejected")
		return
	}

	res, err := resolver.ResolveWithReader(spanCtx, l.sink, change.Table, change.PrimaryKey, change.Op, change.After)
	if err != nil {
		logrus.WithFields(logFields).WithError(err).Error("resolver read failed")
		return
	}

	logrus.WithFields(logFields).WithField("reason", res.Reason).Debug("resolver decision")
	if res.Action != resolver.Apply {
		return
	}

	if change.Op == envelope.OpDelete {
		if err := l.sink.Delete(spanCtx, change.Table, change.PrimaryKey); err != nil {
			logrus.WithFields(logFields).WithError(err).Error("delete failed")
			return
		}
		l.recordMetrics(change, receivedAt)
		return
	}

	filtered := privacy.Apply(change.After)
	if err := l.sink.Upsert(spanCtx, change.Table, filtered.Columns, filtered.Values); err != nil {
		logrus.WithFields(logFields).WithError(err).Error("upsert failed")
		return
	}

	l.recordMetrics(change, receivedAt)
}

func (l *Loop) recordMetrics(change *envelope.Change, receivedAt time.Time) {
	var latencyMs int64
	if change.HasSourceTime {
		latencyMs = time.Now().UnixMilli() - change.SourceTimestampMs
	} else {
		latencyMs = time.Since(receivedAt).Milliseconds()
	}
	l.metrics.Record(string(change.SyncOrigin), string(l.region), change.Table, fmt.Sprint(change.PrimaryKey), latencyMs)
}
