// Command coldremote-send plays the sensor side of the radio link. It seals
// readings under the pre-shared key, fragments them into radio frames and
// sends each frame as a UDP datagram, the way a radio gateway forwards them.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/coldremote/pkg/fragment"
	"github.com/backkem/coldremote/pkg/message"
	"github.com/backkem/coldremote/pkg/reading"
	"github.com/backkem/coldremote/pkg/transport"
)

type options struct {
	KeyHex     string
	To         string
	Sequence   uint32
	Temp       float32
	Lat        float64
	Lon        float64
	LengthMode string
	ByteOrder  string
	FrameSize  int
	Count      int
	Interval   time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "coldremote-send",
		Short: "Send sealed test readings to a coldremote receiver",
		Example: `  # Send one reading
  coldremote-send --key 0102030405060708090a0b0c0d0e0f10 --seq 1 --temp 4.5

  # Send ten consecutive readings a second apart
  coldremote-send --key $KEY --seq 100 --count 10 --interval 1s`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.ListenPacket("udp", ":0")
			if err != nil {
				return err
			}
			defer conn.Close()

			to, err := net.ResolveUDPAddr("udp", opts.To)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", opts.To, err)
			}
			return send(conn, to, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.KeyHex, "key", "k", "", "AES-128 pre-shared key as 32 hex characters")
	cmd.Flags().StringVarP(&opts.To, "to", "t", fmt.Sprintf("127.0.0.1:%d", transport.DefaultPort), "receiver UDP address")
	cmd.Flags().Uint32VarP(&opts.Sequence, "seq", "s", 1, "sequence number of the first reading")
	cmd.Flags().Float32Var(&opts.Temp, "temp", 22.5, "temperature in °C")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "longitude in degrees")
	cmd.Flags().StringVar(&opts.LengthMode, "length-mode", fragment.LengthExplicit.String(), "fragment length mode (explicit, trailing-zero)")
	cmd.Flags().StringVar(&opts.ByteOrder, "byte-order", "little", "reading byte order (little, big)")
	cmd.Flags().IntVar(&opts.FrameSize, "frame-size", fragment.MaxFrameSize, "radio frame size in bytes")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of readings to send")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "delay between readings")

	cmd.MarkFlagRequired("key")

	return cmd
}

// send seals opts.Count readings with consecutive sequence numbers and writes
// their frames to addr.
func send(conn net.PacketConn, addr net.Addr, opts options, out io.Writer) error {
	key, err := hex.DecodeString(opts.KeyHex)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	codec, err := message.NewCodec(key)
	if err != nil {
		return err
	}
	mode, err := fragment.ParseLengthMode(opts.LengthMode)
	if err != nil {
		return err
	}
	order, err := reading.ParseByteOrder(opts.ByteOrder)
	if err != nil {
		return err
	}
	if opts.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", opts.Count)
	}

	counter := message.NewMessageCounterWithValue(opts.Sequence)
	r := reading.Reading{Temperature: opts.Temp, Latitude: opts.Lat, Longitude: opts.Lon}

	for i := 0; i < opts.Count; i++ {
		if i > 0 && opts.Interval > 0 {
			time.Sleep(opts.Interval)
		}

		seq, err := counter.Next()
		if err != nil {
			return err
		}
		nonce, err := message.NewNonce()
		if err != nil {
			return err
		}
		msg, err := codec.Seal(seq, nonce, r.EncodeOrder(order))
		if err != nil {
			return err
		}
		frames, err := fragment.Split(fragment.Version, seq, msg, mode, opts.FrameSize)
		if err != nil {
			return err
		}
		for _, f := range frames {
			if _, err := conn.WriteTo(f, addr); err != nil {
				return fmt.Errorf("send seq %d: %w", seq, err)
			}
		}
		fmt.Fprintf(out, "sent seq=%d %s in %d frames\n", seq, r, len(frames))
	}
	return nil
}
