package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	pkgkafka "AltPull/pkg/kafka"
	applogger "AltPull/pkg/logger"
	"AltPull/pkg/util"
)

// KafkaRunRequestHandler consumes run requests and executes them through the ETL runner.
type KafkaRunRequestHandler struct {
	topic  string
	runner RunExecutor
	logger *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*KafkaRunRequestHandler)(nil)

func NewKafkaRunRequestHandler(topic string, runner RunExecutor, logger *applogger.Logger) *KafkaRunRequestHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &KafkaRunRequestHandler{topic: topic, runner: runner, logger: logger}
}

func (h *KafkaRunRequestHandler) Topic() string { return h.topic }

// Handle decodes {source, symbol, start, end, force}. Malformed payloads are poison and go to the
// DLQ without retries. Requests that can never succeed (validation, unknown source, a run already
// in flight) are acknowledged; anything else is returned so the consumer retries.
func (h *KafkaRunRequestHandler) Handle(ctx context.Context, b []byte) error {
	var m models.TriggerRunRequest
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: decode run request: %v", pkgkafka.ErrPoisonMessage, err)
	}
	req, err := RunRequestFromTrigger(m)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgkafka.ErrPoisonMessage, err)
	}

	log := h.logger.With(
		applogger.String("source", req.Source),
		applogger.String("symbol", req.Symbol),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
	)
	res, err := h.runner.Run(ctx, req)
	if err != nil {
		if terminal(err) {
			log.Warn("run request dropped", applogger.Error(err))
			return nil
		}
		return err
	}
	log.Info("run request completed",
		applogger.String("run_key", res.RunKey),
		applogger.Int("rows", res.Storage.RowsWritten),
		applogger.Bool("skipped", res.Skipped),
	)
	return nil
}

// RunRequestFromTrigger validates and converts the JSON trigger body used by HTTP and Kafka.
func RunRequestFromTrigger(m models.TriggerRunRequest) (models.RunRequest, error) {
	if m.Source == "" || m.Symbol == "" {
		return models.RunRequest{}, errors.New("source and symbol are required")
	}
	start, ok := util.ParseTimePtr(m.Start)
	if !ok {
		return models.RunRequest{}, fmt.Errorf("invalid start %q", m.Start)
	}
	end, ok := util.ParseTimePtr(m.End)
	if !ok {
		return models.RunRequest{}, fmt.Errorf("invalid end %q", m.End)
	}
	return models.RunRequest{Source: m.Source, Symbol: m.Symbol, Start: start, End: end, Force: m.Force}, nil
}

func terminal(err error) bool {
	if errors.Is(err, ErrRunInProgress) {
		return true
	}
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindConfig, errs.KindAuth:
		return true
	}
	return false
}
