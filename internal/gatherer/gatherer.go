// Package gatherer turns downloaded logger memory into sessions.
//
// A batch buffer is a sequence of blocks. Each block starts with a two byte
// big-endian telegram count followed by that many fixed size telegrams.
package gatherer

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/model"
	"unilog-service/pkg/driver"
)

const countLength = 2

// Block is one record set of a batch buffer
type Block struct {
	Offset    int      `json:"offset"`
	Telegrams [][]byte `json:"-"`
	// Truncated is set when the buffer ended before Count telegrams
	Truncated bool `json:"truncated"`
	Count     int  `json:"count"`
}

// Report summarizes a gather run
type Report struct {
	Blocks        int `json:"blocks"`
	Truncated     int `json:"truncated"`
	Short         int `json:"short"`
	ReceiveErrors int `json:"receive_errors"`
	Sessions      int `json:"sessions"`
}

// AppendBlock appends a length prefixed block holding telegrams to buf
func AppendBlock(buf []byte, telegrams [][]byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(telegrams)))
	for _, t := range telegrams {
		buf = append(buf, t...)
	}
	return buf
}

// Split parses buf into blocks. A final block that is cut short keeps the
// complete telegrams it has and is marked truncated.
func Split(buf []byte, telegramLen int) ([]Block, error) {
	if telegramLen <= 0 {
		return nil, fmt.Errorf("invalid telegram length %d", telegramLen)
	}

	var blocks []Block
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < countLength {
			blocks = append(blocks, Block{Offset: offset, Truncated: true})
			break
		}
		count := int(binary.BigEndian.Uint16(buf[offset:]))
		block := Block{Offset: offset, Count: count}
		pos := offset + countLength
		for k := 0; k < count; k++ {
			if pos+telegramLen > len(buf) {
				block.Truncated = true
				break
			}
			block.Telegrams = append(block.Telegrams, buf[pos:pos+telegramLen])
			pos += telegramLen
		}
		blocks = append(blocks, block)
		if block.Truncated {
			break
		}
		offset = pos
	}
	return blocks, nil
}

// Gatherer decodes batch buffers with a generation's telegram decoder
type Gatherer struct {
	decoder    driver.TelegramDecoder
	generation model.Generation
	channels   model.ChannelConfig
	params     calculation.Params
	logger     *zap.Logger
}

// New creates a gatherer. channels is the default layout of the generation.
func New(generation model.Generation, decoder driver.TelegramDecoder, channels model.ChannelConfig, params calculation.Params, logger *zap.Logger) *Gatherer {
	return &Gatherer{
		decoder:    decoder,
		generation: generation,
		channels:   channels,
		params:     params,
		logger:     logger.With(zap.String("component", "gatherer"), zap.String("generation", string(generation))),
	}
}

// Gather decodes every complete block of buf into one finalized session and
// hands the sessions to emit in buffer order. Blocks with too few telegrams
// are counted as short and skipped. Telegrams that fail to decode count as
// receive errors. Returning an error from emit stops the run.
func (g *Gatherer) Gather(ctx context.Context, buf []byte, emit func(*model.Session) error) (Report, error) {
	var report Report

	blocks, err := Split(buf, g.decoder.TelegramLength())
	if err != nil {
		return report, err
	}

	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Blocks++
		if block.Truncated {
			report.Truncated++
			g.logger.Warn("Truncated block",
				zap.Int("offset", block.Offset),
				zap.Int("count", block.Count),
				zap.Int("complete", len(block.Telegrams)),
			)
			continue
		}
		if len(block.Telegrams) < g.decoder.MinTelegrams() {
			report.Short++
			g.logger.Debug("Skipping short block", zap.Int("offset", block.Offset), zap.Int("count", block.Count))
			continue
		}

		session, errs := g.decodeBlock(block)
		report.ReceiveErrors += errs
		if session == nil {
			report.Short++
			continue
		}
		if err := emit(session); err != nil {
			return report, fmt.Errorf("failed to emit session: %w", err)
		}
		report.Sessions++
	}

	g.logger.Info("Batch gathered",
		zap.Int("blocks", report.Blocks),
		zap.Int("sessions", report.Sessions),
		zap.Int("truncated", report.Truncated),
		zap.Int("short", report.Short),
		zap.Int("receive_errors", report.ReceiveErrors),
	)
	return report, nil
}

func (g *Gatherer) decodeBlock(block Block) (*model.Session, int) {
	channels := g.channels.Clone()
	var (
		points []*model.SamplePoint
		step   time.Duration
		errs   int
	)
	for i := g.decoder.SkipTelegrams(); i < len(block.Telegrams); i++ {
		t := block.Telegrams[i]
		p, err := g.decoder.DecodeTelegram(t, &channels)
		if err != nil {
			errs++
			g.logger.Debug("Dropping telegram", zap.Int("offset", block.Offset), zap.Int("index", i), zap.Error(err))
			continue
		}
		if step == 0 {
			step = g.decoder.TimeStep(t)
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, errs
	}

	session := model.NewSession(g.generation, model.SessionSourceBatch, channels)
	session.ReceiveErrors = errs
	for i, p := range points {
		p.ElapsedMs = int64(i) * step.Milliseconds()
		if err := session.Append(p); err != nil {
			g.logger.Warn("Dropping sample", zap.Int("offset", block.Offset), zap.Error(err))
		}
	}

	params := g.params
	if step > 0 {
		params.TimeStep = step
	}
	if err := calculation.Pass(session, params); err != nil {
		g.logger.Error("Derived pass failed", zap.String("session_id", session.ID.String()), zap.Error(err))
	}
	session.Finalize()
	return session, errs
}
