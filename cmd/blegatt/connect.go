package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
	"github.com/srg/blegatt/internal/groutine"
	"github.com/srg/blegatt/session"
)

var connectCmd = &cobra.Command{
	Use:   "connect <device-address>",
	Short: "Open a GATT session and stream data",
	Long: `Connects to a device, discovers its services and binds a read and a write endpoint.

Values pushed or read from the read endpoint are printed to stdout. Stdin is sent to the
write endpoint in packets of at most 19 bytes, one packet in flight at a time.

Examples:
  # Nordic UART
  blegatt connect AA:BB:CC:DD:EE:FF \
    --read 6e400003-b5a3-f393-e0a9-e50e24dcca9e \
    --write 6e400002-b5a3-f393-e0a9-e50e24dcca9e --notify

  # Read the battery level once
  blegatt connect AA:BB:CC:DD:EE:FF --read 2a19 --write 2a19 --read-once`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectReadUUID  string
	connectWriteUUID string
	connectNotify    bool
	connectReadOnce  bool
	connectReliable  bool
)

func init() {
	connectCmd.Flags().StringVar(&connectReadUUID, "read", "", "Read endpoint characteristic UUID")
	connectCmd.Flags().StringVar(&connectWriteUUID, "write", "", "Write endpoint characteristic UUID")
	connectCmd.Flags().BoolVar(&connectNotify, "notify", false, "Enable notifications on the read endpoint")
	connectCmd.Flags().BoolVar(&connectReadOnce, "read-once", false, "Read the read endpoint once and exit")
	connectCmd.Flags().BoolVar(&connectReliable, "reliable", false, "Ask the peer to acknowledge every packet")
	_ = connectCmd.MarkFlagRequired("read")
	_ = connectCmd.MarkFlagRequired("write")
}

func runConnect(cmd *cobra.Command, args []string) error {
	address := device.PeerAddress(args[0])
	uuids, err := device.ValidateUUID(connectReadUUID, connectWriteUUID)
	if err != nil {
		return fmt.Errorf("invalid endpoint UUID: %w", err)
	}

	_, b, logger, err := openBindings(cmd)
	if err != nil {
		return err
	}

	ch := make(chan events.Event, 64)
	sess, err := session.New(b.Central, events.Chan(ch), logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := newStream(sess, cmd.OutOrStdout(), logger, streamOptions{
		ReadUUID:  uuids[0],
		WriteUUID: uuids[1],
		Notify:    connectNotify,
		ReadOnce:  connectReadOnce,
		Reliable:  connectReliable,
	})

	var input <-chan []byte
	if !connectReadOnce {
		input = readInput(ctx, cmd.InOrStdin(), logger)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s...\n", address)
	sess.Open(address)
	return st.run(ctx, ch, input)
}

// readInput forwards chunks of r until EOF, then closes the channel.
func readInput(ctx context.Context, r io.Reader, logger *logrus.Logger) <-chan []byte {
	out := make(chan []byte)
	groutine.Go(ctx, "stdin-reader", func(ctx context.Context) {
		defer close(out)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case out <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					logger.WithError(err).Warn("Stdin read failed")
				}
				return
			}
		}
	})
	return out
}

type streamOptions struct {
	ReadUUID  string
	WriteUUID string
	Notify    bool
	ReadOnce  bool
	Reliable  bool
}

// stream reacts to session events on the command goroutine: it binds the endpoints once
// services are known, prints incoming data and feeds the packetizer to the write endpoint.
type stream struct {
	sess    *session.Session
	out     io.Writer
	logger  *logrus.Logger
	opts    streamOptions
	packets *Packetizer

	ready     bool
	inputDone bool
	read      *device.Characteristic
}

func newStream(sess *session.Session, out io.Writer, logger *logrus.Logger, opts streamOptions) *stream {
	return &stream{
		sess:    sess,
		out:     out,
		logger:  logger,
		opts:    opts,
		packets: NewPacketizer(DefaultInputBuffer, device.MaxWritePayload),
	}
}

func (st *stream) run(ctx context.Context, ch <-chan events.Event, input <-chan []byte) error {
	if input == nil {
		st.inputDone = true
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case data, ok := <-input:
			if !ok {
				input = nil
				st.inputDone = true
				if st.finished() {
					return nil
				}
				continue
			}
			if kept := st.packets.Push(data); kept < len(data) {
				st.logger.WithField("dropped", len(data)-kept).Warn("Input buffer full, bytes dropped")
			}
			st.pump()

		case ev := <-ch:
			done, err := st.handle(ev)
			if err != nil || done {
				return err
			}
		}
	}
}

// handle applies one session event. done is true once the command has nothing left to do.
func (st *stream) handle(ev events.Event) (done bool, err error) {
	switch ev.Type {
	case events.ConnectFail:
		return true, fmt.Errorf("failed to connect to %s: %w", ev.Peer.Address, ev.Err)

	case events.ConnectSuccess:
		st.logger.WithField("address", ev.Peer.Address).Debug("Connected, waiting for services")

	case events.ServicesDiscovered:
		if err := st.bind(ev.Services); err != nil {
			return true, err
		}
		return st.finished(), nil

	case events.ServicesDiscoverFail, events.DescriptorWriteFail:
		return true, fmt.Errorf("%s: %w", ev.Type, ev.Err)

	case events.DescriptorWriteSuccess:
		st.becomeReady()

	case events.DescriptorReadSuccess:
		if ev.Descriptor != nil {
			fmt.Fprintf(st.out, "%s: %s\n", ev.Descriptor.UUID, device.DescribeDescriptorValue(ev.Descriptor.UUID, ev.Data))
		}

	case events.DescriptorReadFail:
		return true, fmt.Errorf("descriptor read failed: %w", ev.Err)

	case events.DataAvailable:
		st.printData(ev.Data)

	case events.ReadSuccess:
		st.printData(ev.Data)
		if st.opts.ReadOnce {
			return true, nil
		}

	case events.ReadFail:
		if st.opts.ReadOnce {
			return true, fmt.Errorf("read failed: %w", ev.Err)
		}
		st.logger.WithError(ev.Err).Warn("Read failed")

	case events.WriteSuccess, events.ReliableWriteSuccess:
		st.packets.Ack()
		st.pump()
		return st.finished(), nil

	case events.WriteFail, events.ReliableWriteFail:
		st.packets.Reset()
		return true, fmt.Errorf("%w: write failed: %v", ErrConnectionLost, ev.Err)

	case events.LostConnection:
		return true, fmt.Errorf("%w: %v", ErrConnectionLost, ev.Err)
	}
	return false, nil
}

// bind resolves and configures the endpoints. Without notifications the session is usable
// as soon as Configure returns.
func (st *stream) bind(services []*device.Service) error {
	read, err := device.FindCharacteristic(services, st.opts.ReadUUID)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrEndpointNotFound, st.opts.ReadUUID, err)
	}
	write, err := device.FindCharacteristic(services, st.opts.WriteUUID)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrEndpointNotFound, st.opts.WriteUUID, err)
	}
	st.read = read

	if !st.sess.Configure(read, write, st.opts.Notify) {
		return fmt.Errorf("failed to configure endpoints %s/%s", read.UUID, write.UUID)
	}
	if !st.opts.Notify {
		st.becomeReady()
	}
	return nil
}

func (st *stream) becomeReady() {
	if st.ready {
		return
	}
	st.ready = true

	if d, err := st.read.Descriptor(device.DescriptorUserDescription); err == nil {
		st.sess.ReadDescriptor(d)
	}
	if st.opts.ReadOnce {
		st.sess.RequestRead()
		return
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Ready. Type to send, Ctrl+D to finish, Ctrl+C to quit.")
	}
	st.pump()
}

// pump sends the next packet when the previous one completed.
func (st *stream) pump() {
	if !st.ready {
		return
	}
	packet, ok := st.packets.Next()
	if !ok {
		return
	}

	var sent bool
	if st.opts.Reliable {
		sent = st.sess.WriteReliable(packet)
	} else {
		sent = st.sess.Write(packet)
	}
	if !sent {
		st.logger.WithField("size", len(packet)).Warn("Write not issued, packet dropped")
		st.packets.Ack()
	}
}

// finished is true when input ended, everything was written and no pushes are expected.
func (st *stream) finished() bool {
	return st.ready && st.inputDone && st.packets.Drained() && !st.opts.Notify && !st.opts.ReadOnce
}

var dataColor = color.New(color.FgGreen)

func (st *stream) printData(data []byte) {
	if isPrintable(data) {
		dataColor.Fprintf(st.out, "%s", data)
		return
	}
	dataColor.Fprintf(st.out, "[% x]\n", data)
}

func isPrintable(data []byte) bool {
	for _, c := range data {
		if (c < 0x20 && c != '\n' && c != '\r' && c != '\t') || c > 0x7e {
			return false
		}
	}
	return true
}
