// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"code.hybscloud.com/mps"
	"code.hybscloud.com/mps/internal/bo"
	"code.hybscloud.com/mps/internal/mockrecord"
)

var roundtripArgs struct {
	ConfigPath string
	Verbose    bool
}

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip",
	Short: "Write a handshake message and read it back over a simulated record layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(roundtripArgs.ConfigPath)
		if err != nil {
			return err
		}
		if roundtripArgs.Verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		return runRoundtrip(cfg)
	},
}

func init() {
	roundtripCmd.Flags().StringVarP(&roundtripArgs.ConfigPath, "config", "c", "", "Path to a YAML config file")
	roundtripCmd.Flags().BoolVarP(&roundtripArgs.Verbose, "verbose", "v", false, "Enable debug-level transition tracing")
}

// epochCache remembers the last message type written per epoch, purely
// as a diagnostic; the harness fills it but does not print it, and it is
// not load-bearing for correctness.
type epochCache struct {
	cache *lru.Cache[uint64, uint8]
}

func newEpochCache(size int) *epochCache {
	c, _ := lru.New[uint64, uint8](size)
	return &epochCache{cache: c}
}

const (
	demoEpoch   = 1
	demoMsgType = 1
)

func runRoundtrip(cfg *Config) error {
	mode, err := cfg.mpsMode()
	if err != nil {
		return err
	}

	recordSize := int(cfg.RecordSize.Bytes())
	messageSize := int64(cfg.MessageSize.Bytes())
	logger := log.Logger
	epochs := newEpochCache(16)

	logger.Debug().Str("host_byte_order", bo.Label(bo.Native())).
		Msg("loopback harness host order (wire format is always big-endian)")

	rl := mockrecord.New(recordSize)
	out := mps.NewLayer3(rl, mps.WithMode(mode), mps.WithLogger(logger))

	if mode == mps.DTLS {
		if err := writeDTLSFragment(out, recordSize, messageSize); err != nil {
			return fmt.Errorf("write dtls fragment: %w", err)
		}
	} else {
		if err := writeTLSMessage(out, recordSize, messageSize); err != nil {
			return fmt.Errorf("write tls message: %w", err)
		}
	}
	epochs.cache.Add(demoEpoch, demoMsgType)

	emitted := rl.Emitted()
	logger.Info().Int("records", len(emitted)).Int64("message_size", messageSize).
		Msg("handshake message written")

	rl2 := mockrecord.New(recordSize)
	rl2.Queue(emitted...)
	in := mps.NewLayer3(rl2, mps.WithMode(mode), mps.WithLogger(logger))

	total, err := readHandshakeMessage(in, mode)
	if err != nil {
		return err
	}

	logger.Info().Int64("bytes_read", total).Msg("handshake message verified")
	return nil
}

// writeTLSMessage writes a full-length TLS handshake message, pausing
// and resuming across record boundaries as the outgoing record fills.
func writeTLSMessage(l3 *mps.Layer3, recordSize int, length int64) error {
	ext, err := writeHandshakeWithRetry(l3, length, 0, length, mps.TLS)
	if err != nil {
		return err
	}

	var written int64
	for written < length {
		buf, err := ext.GetExt(length-written, false)
		if err != nil {
			return fmt.Errorf("get_ext: %w", err)
		}
		fillPattern(buf, written)
		if err := ext.CommitExt(); err != nil {
			return err
		}
		written += int64(len(buf))
		if written >= length {
			break
		}

		if err := l3.PauseHandshake(); err != nil {
			return fmt.Errorf("pause_handshake: %w", err)
		}
		ext, err = writeHandshakeWithRetry(l3, length, 0, length, mps.TLS)
		if err != nil {
			return err
		}
	}
	return l3.Dispatch()
}

// writeDTLSFragment writes one DTLS handshake fragment of unknown
// total length, which by design is always a single fragment
// (fragOffset must be 0 when length is unknown).
func writeDTLSFragment(l3 *mps.Layer3, recordSize int, length int64) error {
	ext, err := l3.WriteHandshake(demoEpoch, demoMsgType, mps.SizeUnknown, 0, mps.SizeUnknown)
	if err != nil {
		return err
	}
	buf, err := ext.GetExt(length, true)
	if err != nil {
		return fmt.Errorf("get_ext: %w (does it fit in one %d-byte record?)", err, recordSize)
	}
	fillPattern(buf, 0)
	if err := ext.CommitExt(); err != nil {
		return err
	}
	return l3.Dispatch()
}

func fillPattern(buf []byte, offset int64) {
	for i := range buf {
		buf[i] = byte(offset + int64(i))
	}
}

func readHandshakeMessage(l3 *mps.Layer3, mode mps.Mode) (int64, error) {
	var total int64
	for {
		ct, err := l3.Read()
		if err != nil {
			return total, fmt.Errorf("read: %w", err)
		}
		if ct != mps.ContentTypeHandshake {
			return total, fmt.Errorf("unexpected content type %d", ct)
		}
		extr, _, err := l3.ReadHandshake()
		if err != nil {
			return total, err
		}
		remaining := extr.DeclaredTotal() - extr.Committed()
		body, err := extr.GetExt(remaining, false)
		if err != nil {
			return total, fmt.Errorf("get_ext: %w", err)
		}
		total += int64(len(body))
		if err := extr.CommitExt(); err != nil {
			return total, err
		}
		if err := extr.CheckDone(); err == nil {
			return total, l3.Consume()
		}
		if mode != mps.TLS {
			return total, fmt.Errorf("incomplete dtls fragment with no resume path")
		}
		if err := l3.PauseHandshakeIncoming(); err != nil {
			return total, fmt.Errorf("pause_handshake (incoming): %w", err)
		}
	}
}

// writeHandshakeWithRetry retries WriteHandshake on ErrRetry using an
// exponential backoff, mirroring how a real record-layer flush delay
// would be handled by a caller driving Layer 3 over a real transport.
func writeHandshakeWithRetry(l3 *mps.Layer3, length, fragOffset, fragLen int64, mode mps.Mode) (*mps.ExtWriter, error) {
	b := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second,
	}
	b.Reset()

	for attempt := 0; attempt < 8; attempt++ {
		ext, err := l3.WriteHandshake(demoEpoch, demoMsgType, length, fragOffset, fragLen)
		if err == nil {
			return ext, nil
		}
		if !errors.Is(err, mps.ErrRetry) {
			return nil, err
		}
		time.Sleep(b.NextBackOff())
	}
	return nil, mps.ErrRetry
}
