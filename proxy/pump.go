package proxy

import (
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"feslproxy/fesl"
	"feslproxy/shared"
)

const readBufferSize = 8192

// maxZeroReads bounds how many consecutive zero-byte, error-free reads a
// loop tolerates before treating the connection as dead. A single empty
// read is legitimate (a TLS record can carry no application data), but a
// sustained run of them means the transport has stopped making progress.
const maxZeroReads = 1024

// pumpClientToUpstream relays downstream application data to the upstream,
// decoding each buffer and applying the rewrite policy before forwarding.
func (s *Session) pumpClientToUpstream() error {
	logger := s.logger.With(zap.String("direction", "client->upstream"))
	buf := make([]byte, readBufferSize)
	zeroReads := 0

	for {
		n, err := s.downstream.Read(buf)
		if err != nil {
			logReadEnd(logger, err)
			return err
		}
		if n == 0 {
			zeroReads++
			if zeroReads >= maxZeroReads {
				logger.Warn("sustained zero-length reads, treating downstream as disconnected",
					zap.Int("consecutive_reads", zeroReads))
				return io.EOF
			}
			continue
		}
		zeroReads = 0

		out, err := s.inspect(logger, buf[:n])
		if err != nil {
			return err
		}
		if _, err := s.upstream.Write(out); err != nil {
			logger.Error("upstream write failed", zap.Error(err))
			return err
		}
	}
}

// pumpUpstreamToClient relays backend responses to the client verbatim,
// with no inspection or rewriting.
func (s *Session) pumpUpstreamToClient() error {
	logger := s.logger.With(zap.String("direction", "upstream->client"))
	buf := make([]byte, readBufferSize)
	zeroReads := 0

	for {
		n, err := s.upstream.Read(buf)
		if err != nil {
			logReadEnd(logger, err)
			return err
		}
		if n == 0 {
			zeroReads++
			if zeroReads >= maxZeroReads {
				logger.Warn("sustained zero-length reads, treating upstream as disconnected",
					zap.Int("consecutive_reads", zeroReads))
				return io.EOF
			}
			continue
		}
		zeroReads = 0

		logger.Debug("forwarding server data", zap.Int("bytes", n))
		if _, err := s.downstream.Write(buf[:n]); err != nil {
			logger.Error("downstream write failed", zap.Error(err))
			return err
		}
	}
}

// inspect classifies one client buffer and applies the rewrite policy.
// It returns the bytes to forward, or an error that ends the session:
// ErrTicketCaptured for a dump, an encode failure after an override
// (fail-safe: a possibly-corrupt substituted buffer is never forwarded).
func (s *Session) inspect(logger *zap.Logger, raw []byte) ([]byte, error) {
	pkt := fesl.Decode(raw)
	if pkt == nil {
		// Unclassifiable data defaults to pass-through.
		logger.Debug("unclassified client data, forwarding verbatim",
			zap.Int("bytes", len(raw)),
			zap.String("dump", shared.HexDump(raw)))
		return raw, nil
	}

	logger.Debug("client packet",
		zap.Uint32("id", pkt.ID),
		zap.Uint32("length", pkt.Length),
		zap.String("type", pkt.Type),
		zap.String("txn", pkt.TXN()),
		zap.Any("fields", pkt.Fields.Map()))

	if pkt.Type != accountPacketType || !authTransactions[pkt.TXN()] {
		s.publish(pkt, len(raw), false)
		return raw, nil
	}

	ticket, ok := pkt.Fields.Get(ticketField)
	if !ok {
		s.publish(pkt, len(raw), false)
		return raw, nil
	}

	// Dump takes precedence over override.
	if s.policy.DumpClientTicket && ticket != "" {
		logger.Error("captured client ticket, aborting session",
			zap.String("txn", pkt.TXN()),
			zap.String("ticket", ticket))
		s.publish(pkt, len(raw), false)
		return nil, ErrTicketCaptured
	}

	if s.policy.OverrideTicket != "" && ticket != "" {
		pkt.Fields.Set(ticketField, s.policy.OverrideTicket)
		if s.policy.OverrideMacAddress != "" {
			pkt.Fields.Set(macAddrField, s.policy.OverrideMacAddress)
		}
		out, err := fesl.Encode(pkt)
		if err != nil {
			logger.Error("re-encoding rewritten packet failed, ending session", zap.Error(err))
			return nil, err
		}
		logger.Info("rewrote login ticket",
			zap.Uint32("id", pkt.ID),
			zap.String("txn", pkt.TXN()),
			zap.Int("old_length", len(raw)),
			zap.Int("new_length", len(out)))
		s.publish(pkt, len(out), true)
		return out, nil
	}

	s.publish(pkt, len(raw), false)
	return raw, nil
}

func logReadEnd(logger *zap.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		logger.Debug("connection closed")
		return
	}
	logger.Warn("read failed", zap.Error(err))
}
