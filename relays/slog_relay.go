package relays

import (
	"context"
	"log/slog"
	"os"

	relayDTO "github.com/joy-dx/relay/dto"
)

// LevelFatal sits above slog.LevelError. The relay never exits the process.
const LevelFatal = slog.Level(12)

// SlogRelay forwards relay events to a slog.Logger.
type SlogRelay struct {
	logger *slog.Logger
}

func NewSlogRelay(logger *slog.Logger) *SlogRelay {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &SlogRelay{logger: logger}
}

func (r *SlogRelay) Debug(data relayDTO.RelayEventInterface) { r.log(slog.LevelDebug, data) }
func (r *SlogRelay) Info(data relayDTO.RelayEventInterface)  { r.log(slog.LevelInfo, data) }
func (r *SlogRelay) Warn(data relayDTO.RelayEventInterface)  { r.log(slog.LevelWarn, data) }
func (r *SlogRelay) Error(data relayDTO.RelayEventInterface) { r.log(slog.LevelError, data) }
func (r *SlogRelay) Fatal(data relayDTO.RelayEventInterface) { r.log(LevelFatal, data) }
func (r *SlogRelay) Meta(data relayDTO.RelayEventInterface)  { r.log(slog.LevelDebug, data) }

type channeled interface {
	RelayChannel() relayDTO.EventChannel
	RelayType() relayDTO.EventRef
}

type slogger interface {
	ToSlog() []slog.Attr
}

func (r *SlogRelay) log(level slog.Level, data relayDTO.RelayEventInterface) {
	if data == nil {
		return
	}
	ctx := context.Background()
	if !r.logger.Enabled(ctx, level) {
		return
	}
	var attrs []slog.Attr
	if ch, ok := data.(channeled); ok {
		attrs = append(attrs,
			slog.String("channel", string(ch.RelayChannel())),
			slog.String("type", string(ch.RelayType())),
		)
	}
	if s, ok := data.(slogger); ok {
		attrs = append(attrs, s.ToSlog()...)
	}
	r.logger.LogAttrs(ctx, level, data.Message(), attrs...)
}
